package signer

import "testing"

func TestVerifyWithPublicKey(t *testing.T) {
	msg := []byte("did creation details")
	for _, alg := range []Algorithm{Sr25519, Ed25519, Ecdsa} {
		s, err := FromMnemonic(alg, devPhrase, "")
		if err != nil {
			t.Fatalf("%s: derive: %v", alg, err)
		}
		sig, err := s.Sign(msg)
		if err != nil {
			t.Fatalf("%s: sign: %v", alg, err)
		}
		if !VerifyWithPublicKey(s.PublicKey(), msg, sig) {
			t.Fatalf("%s: signature must verify against the bare public key", alg)
		}
		if VerifyWithPublicKey(s.PublicKey(), []byte("tampered"), sig) {
			t.Fatalf("%s: tampered message must not verify", alg)
		}
	}
}

func TestRecoverEcdsaPublicKeyMatchesAccount(t *testing.T) {
	s, err := FromMnemonic(Ecdsa, devPhrase, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	msg := []byte("payload")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, err := RecoverEcdsaPublicKey(msg, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if EcdsaAccountID(pub) != s.AccountID() {
		t.Fatal("recovered key must map to the signer account")
	}
	if _, err := RecoverEcdsaPublicKey(msg, TaggedSignature{Algorithm: Sr25519, Bytes: sig.Bytes}); err == nil {
		t.Fatal("non-ecdsa signature must not recover")
	}
}
