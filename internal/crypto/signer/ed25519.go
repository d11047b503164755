package signer

import "crypto/ed25519"

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newEd25519Signer(seed []byte) *ed25519Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	return &ed25519Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}
}

func (s *ed25519Signer) Algorithm() Algorithm { return Ed25519 }

func (s *ed25519Signer) AccountID() AccountID {
	var id AccountID
	copy(id[:], s.pub)
	return id
}

func (s *ed25519Signer) PublicKey() []byte { return append([]byte(nil), s.pub...) }

func (s *ed25519Signer) Address() string { return EncodeAddress(DefaultAddressPrefix, s.AccountID()) }

func (s *ed25519Signer) Sign(msg []byte) (TaggedSignature, error) {
	return TaggedSignature{Algorithm: Ed25519, Bytes: ed25519.Sign(s.priv, msg)}, nil
}

func (s *ed25519Signer) Verify(msg []byte, sig TaggedSignature) bool {
	if sig.Algorithm != Ed25519 || len(sig.Bytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, msg, sig.Bytes)
}
