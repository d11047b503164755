package signer

import (
	"encoding/hex"
	"fmt"
)

// Variant indexes of the ledger's DidSignature and MultiSignature enums.
const (
	variantEd25519 byte = 0
	variantSr25519 byte = 1
	variantEcdsa   byte = 2
)

// EncodeDidSignature returns the SCALE encoding of the ledger DidSignature
// enum: one variant byte followed by the raw signature. Account signatures
// (MultiSignature) share the variant order, so the same bytes serve both.
func EncodeDidSignature(sig TaggedSignature) ([]byte, error) {
	size, err := sig.Algorithm.SignatureSize()
	if err != nil {
		return nil, err
	}
	if len(sig.Bytes) != size {
		return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrSignatureSize, sig.Algorithm, size, len(sig.Bytes))
	}
	out := make([]byte, 0, 1+size)
	out = append(out, variantOf(sig.Algorithm))
	return append(out, sig.Bytes...), nil
}

// Hex renders the raw signature bytes as 0x-prefixed lowercase hex.
func Hex(sig TaggedSignature) string {
	return "0x" + hex.EncodeToString(sig.Bytes)
}

func variantOf(alg Algorithm) byte {
	switch alg {
	case Ed25519:
		return variantEd25519
	case Ecdsa:
		return variantEcdsa
	default:
		return variantSr25519
	}
}
