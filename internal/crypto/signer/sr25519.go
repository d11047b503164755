package signer

import (
	"fmt"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
)

var substrateSigningContext = []byte("substrate")

type sr25519Signer struct {
	secret *schnorrkel.SecretKey
	public *schnorrkel.PublicKey
	pub    [32]byte
}

func newSr25519Signer(seed []byte) (*sr25519Signer, error) {
	var raw [32]byte
	copy(raw[:], seed)
	defer zeroBytes(raw[:])
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	public := mini.Public()
	return &sr25519Signer{
		secret: mini.ExpandEd25519(),
		public: public,
		pub:    public.Encode(),
	}, nil
}

func (s *sr25519Signer) Algorithm() Algorithm { return Sr25519 }

func (s *sr25519Signer) AccountID() AccountID { return AccountID(s.pub) }

func (s *sr25519Signer) PublicKey() []byte { return append([]byte(nil), s.pub[:]...) }

func (s *sr25519Signer) Address() string { return EncodeAddress(DefaultAddressPrefix, s.AccountID()) }

func (s *sr25519Signer) Sign(msg []byte) (TaggedSignature, error) {
	sig, err := s.secret.Sign(schnorrkel.NewSigningContext(substrateSigningContext, msg))
	if err != nil {
		return TaggedSignature{}, err
	}
	encoded := sig.Encode()
	return TaggedSignature{Algorithm: Sr25519, Bytes: encoded[:]}, nil
}

func (s *sr25519Signer) Verify(msg []byte, sig TaggedSignature) bool {
	if sig.Algorithm != Sr25519 || len(sig.Bytes) != sr25519SignatureSize {
		return false
	}
	var raw [sr25519SignatureSize]byte
	copy(raw[:], sig.Bytes)
	decoded := new(schnorrkel.Signature)
	if err := decoded.Decode(raw); err != nil {
		return false
	}
	ok, err := s.public.Verify(decoded, schnorrkel.NewSigningContext(substrateSigningContext, msg))
	return err == nil && ok
}
