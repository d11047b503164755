package signer

import (
	"bytes"
	"crypto/ed25519"
	"errors"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

var ErrRecover = errors.New("cannot recover public key from signature")

// VerifyWithPublicKey checks sig over msg against a bare public key, as a
// ledger does when it only knows the key stored in a DID document.
// Ecdsa keys are 33-byte compressed points.
func VerifyWithPublicKey(pub, msg []byte, sig TaggedSignature) bool {
	switch sig.Algorithm {
	case Sr25519:
		if len(pub) != 32 || len(sig.Bytes) != sr25519SignatureSize {
			return false
		}
		pk, err := schnorrkel.NewPublicKey([32]byte(pub))
		if err != nil {
			return false
		}
		decoded := new(schnorrkel.Signature)
		if err := decoded.Decode([sr25519SignatureSize]byte(sig.Bytes)); err != nil {
			return false
		}
		ok, err := pk.Verify(decoded, schnorrkel.NewSigningContext(substrateSigningContext, msg))
		return err == nil && ok
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize || len(sig.Bytes) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig.Bytes)
	case Ecdsa:
		recovered, err := RecoverEcdsaPublicKey(msg, sig)
		return err == nil && bytes.Equal(recovered, pub)
	default:
		return false
	}
}

// RecoverEcdsaPublicKey returns the compressed public key that produced an
// r||s||v signature over blake2b-256(msg).
func RecoverEcdsaPublicKey(msg []byte, sig TaggedSignature) ([]byte, error) {
	if sig.Algorithm != Ecdsa || len(sig.Bytes) != ecdsaSignatureSize || sig.Bytes[64] > 3 {
		return nil, ErrRecover
	}
	compact := make([]byte, ecdsaSignatureSize)
	compact[0] = sig.Bytes[64] + compactRecoveryBase
	copy(compact[1:], sig.Bytes[:64])
	digest := blake2b.Sum256(msg)
	pub, _, err := secpecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, ErrRecover
	}
	return pub.SerializeCompressed(), nil
}

// EcdsaAccountID maps a compressed ecdsa public key to its account id.
func EcdsaAccountID(pub []byte) AccountID {
	return AccountID(blake2b.Sum256(pub))
}
