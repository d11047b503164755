package signer

import (
	"encoding/hex"
	"errors"
	"testing"
)

const devPhrase = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

func TestMiniSecretFromMnemonicMatchesSubstrateDevSeed(t *testing.T) {
	seed, err := MiniSecretFromMnemonic(devPhrase, "")
	if err != nil {
		t.Fatalf("derive mini secret: %v", err)
	}
	want := "fac7959dbfe72f052e5a0c3c8d6530f202b02fd8f9f5ca3580ec8deb7797479e"
	if got := hex.EncodeToString(seed); got != want {
		t.Fatalf("unexpected mini secret: got %s want %s", got, want)
	}
}

func TestMiniSecretRejectsInvalidMnemonic(t *testing.T) {
	if _, err := MiniSecretFromMnemonic("not a real phrase", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestSignersRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Sr25519, Ed25519, Ecdsa} {
		t.Run(alg.String(), func(t *testing.T) {
			s, err := FromMnemonic(alg, devPhrase, "")
			if err != nil {
				t.Fatalf("from mnemonic: %v", err)
			}
			if s.Algorithm() != alg {
				t.Fatalf("algorithm mismatch: %s", s.Algorithm())
			}
			if s.AccountID().IsZero() {
				t.Fatal("account id must not be zero")
			}
			msg := []byte("did authorized call")
			sig, err := s.Sign(msg)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			size, _ := alg.SignatureSize()
			if len(sig.Bytes) != size {
				t.Fatalf("signature size: got %d want %d", len(sig.Bytes), size)
			}
			if !s.Verify(msg, sig) {
				t.Fatal("signature must verify")
			}
			if s.Verify([]byte("other message"), sig) {
				t.Fatal("signature must not verify a different message")
			}
		})
	}
}

func TestSignersAreDeterministicPerSeed(t *testing.T) {
	for _, alg := range []Algorithm{Sr25519, Ed25519, Ecdsa} {
		a, err := FromMnemonic(alg, devPhrase, "")
		if err != nil {
			t.Fatalf("%s first derive: %v", alg, err)
		}
		b, err := FromMnemonic(alg, devPhrase, "")
		if err != nil {
			t.Fatalf("%s second derive: %v", alg, err)
		}
		if a.Address() != b.Address() {
			t.Fatalf("%s addresses differ: %s vs %s", alg, a.Address(), b.Address())
		}
	}
}

func TestPasswordChangesDerivedAccount(t *testing.T) {
	a, err := FromMnemonic(Sr25519, devPhrase, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := FromMnemonic(Sr25519, devPhrase, "secret")
	if err != nil {
		t.Fatalf("derive with password: %v", err)
	}
	if a.AccountID() == b.AccountID() {
		t.Fatal("password must change the derived account")
	}
}

func TestEcdsaSignatureRejectsBadRecoveryByte(t *testing.T) {
	s, err := FromMnemonic(Ecdsa, devPhrase, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	msg := []byte("payload")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig.Bytes[64] > 3 {
		t.Fatalf("recovery byte out of range: %d", sig.Bytes[64])
	}
	sig.Bytes[64] = 9
	if s.Verify(msg, sig) {
		t.Fatal("signature with invalid recovery byte must not verify")
	}
}

func TestFromSeedRejectsWrongLength(t *testing.T) {
	if _, err := FromSeed(Ed25519, make([]byte, 16)); !errors.Is(err, ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
	if _, err := FromSeed(Algorithm(9), make([]byte, 32)); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]Algorithm{
		"":          Sr25519,
		"sr25519":   Sr25519,
		"Ed25519":   Ed25519,
		"secp256k1": Ecdsa,
		" ecdsa ":   Ecdsa,
	}
	for raw, want := range cases {
		got, err := ParseAlgorithm(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", raw, got, want)
		}
	}
	if _, err := ParseAlgorithm("rsa"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestFromSecretAcceptsPhraseAndHexSeed(t *testing.T) {
	fromPhrase, err := FromSecret(Sr25519, "  "+devPhrase+" ")
	if err != nil {
		t.Fatalf("from phrase: %v", err)
	}
	fromHex, err := FromSecret(Sr25519, "0xfac7959dbfe72f052e5a0c3c8d6530f202b02fd8f9f5ca3580ec8deb7797479e")
	if err != nil {
		t.Fatalf("from hex seed: %v", err)
	}
	if fromPhrase.AccountID() != fromHex.AccountID() {
		t.Fatal("phrase and its mini secret must yield the same account")
	}
	if _, err := FromSecret(Sr25519, "0xnothex"); !errors.Is(err, ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
	if _, err := FromSecret(Sr25519, "0x0102"); !errors.Is(err, ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed for short seed, got %v", err)
	}
}
