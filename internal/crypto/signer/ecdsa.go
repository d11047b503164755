package signer

import (
	"bytes"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

// compactRecoveryBase is the header offset SignCompact adds for compressed keys.
const compactRecoveryBase = 27 + 4

type ecdsaSigner struct {
	priv *secp256k1.PrivateKey
	pub  []byte
}

func newEcdsaSigner(seed []byte) (*ecdsaSigner, error) {
	priv := secp256k1.PrivKeyFromBytes(seed)
	if priv.Key.IsZero() {
		return nil, ErrInvalidSeed
	}
	return &ecdsaSigner{
		priv: priv,
		pub:  priv.PubKey().SerializeCompressed(),
	}, nil
}

func (s *ecdsaSigner) Algorithm() Algorithm { return Ecdsa }

// AccountID of an ecdsa key is the blake2b-256 digest of its compressed public key.
func (s *ecdsaSigner) AccountID() AccountID {
	return EcdsaAccountID(s.pub)
}

func (s *ecdsaSigner) PublicKey() []byte { return append([]byte(nil), s.pub...) }

func (s *ecdsaSigner) Address() string { return EncodeAddress(DefaultAddressPrefix, s.AccountID()) }

// Sign produces a 65-byte r||s||v signature over blake2b-256(msg).
func (s *ecdsaSigner) Sign(msg []byte) (TaggedSignature, error) {
	digest := blake2b.Sum256(msg)
	compact := secpecdsa.SignCompact(s.priv, digest[:], true)
	out := make([]byte, ecdsaSignatureSize)
	copy(out, compact[1:])
	out[64] = compact[0] - compactRecoveryBase
	return TaggedSignature{Algorithm: Ecdsa, Bytes: out}, nil
}

func (s *ecdsaSigner) Verify(msg []byte, sig TaggedSignature) bool {
	recovered, err := RecoverEcdsaPublicKey(msg, sig)
	return err == nil && bytes.Equal(recovered, s.pub)
}
