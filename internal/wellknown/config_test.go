package wellknown

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"olibox/agent/internal/crypto/signer"
)

func testSigner(t *testing.T) signer.Signer {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = 5
	s, err := signer.FromSeed(signer.Sr25519, seed)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestIssueSubjectAndProof(t *testing.T) {
	s := testSigner(t)
	now := time.Date(2026, 3, 1, 10, 49, 26, 523_000_000, time.UTC)
	const (
		didURI = "did:kilt:4pnfkRn5UurBJTW92d9TaVLR2CqJdY4z5HPjrEbpGyBykare"
		keyURI = didURI + "#0xbcb574af4617bda1f2528606b241c2e23f56cf20a054decf938c0d9c2b65a6f8"
		origin = "https://box.example"
	)
	cfg, err := Issue(didURI, origin, keyURI, s, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cfg.Context != ConfigurationContext || len(cfg.LinkedDids) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	linked := cfg.LinkedDids[0]
	if linked.Issuer != didURI || linked.CredentialSubject.ID != didURI || linked.CredentialSubject.Origin != origin {
		t.Fatalf("unexpected subject %+v", linked.CredentialSubject)
	}
	if linked.IssuanceDate != "2026-03-01T10:49:26.523Z" || linked.ExpirationDate != "2027-03-01T10:49:26.523Z" {
		t.Fatalf("unexpected dates %s .. %s", linked.IssuanceDate, linked.ExpirationDate)
	}
	if linked.Proof.Type != ProofType || linked.Proof.ProofPurpose != ProofPurpose || linked.Proof.VerificationMethod != keyURI {
		t.Fatalf("unexpected proof %+v", linked.Proof)
	}

	root, err := hex.DecodeString(strings.TrimPrefix(linked.CredentialSubject.RootHash, "0x"))
	if err != nil || len(root) != 32 {
		t.Fatalf("root hash must be 32 bytes of 0x hex, got %q", linked.CredentialSubject.RootHash)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(linked.Proof.Signature, "0x"))
	if err != nil {
		t.Fatalf("signature hex: %v", err)
	}
	if !s.Verify(root, signer.TaggedSignature{Algorithm: signer.Sr25519, Bytes: sig}) {
		t.Fatal("proof signature must verify over the root hash")
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"@context":"https://identity.foundation`, `"linked_dids":[`, `"credentialSubject":`, `"rootHash":"0x`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("serialized config lacks %s: %s", key, raw)
		}
	}
}

func TestIssueRandomizesRootHash(t *testing.T) {
	s := testSigner(t)
	now := time.Now()
	a, err := Issue("did:kilt:x", "https://a.example", "did:kilt:x#0x01", s, now)
	if err != nil {
		t.Fatalf("issue a: %v", err)
	}
	b, err := Issue("did:kilt:x", "https://a.example", "did:kilt:x#0x01", s, now)
	if err != nil {
		t.Fatalf("issue b: %v", err)
	}
	if a.LinkedDids[0].CredentialSubject.RootHash == b.LinkedDids[0].CredentialSubject.RootHash {
		t.Fatal("root hash must differ between issuances")
	}
}

func TestStatementsAreNotHTMLEscaped(t *testing.T) {
	parts, err := statements("did:kilt:x", "https://a.example/?a=1&b=<2>")
	if err != nil {
		t.Fatalf("statements: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected three statements, got %d", len(parts))
	}
	if string(parts[0]) != `{"@id":"did:kilt:x"}` {
		t.Fatalf("unexpected first statement %s", parts[0])
	}
	want := `{"` + DomainLinkageCType + `#origin":"https://a.example/?a=1&b=<2>"}`
	if string(parts[2]) != want {
		t.Fatalf("got %s, want %s", parts[2], want)
	}
}

func TestHolderSetOrigin(t *testing.T) {
	h := NewHolder("did:kilt:x", "did:kilt:x#0x01", "https://old.example", testSigner(t))
	if err := h.SetOrigin("not a url"); !errors.Is(err, ErrInvalidOrigin) {
		t.Fatalf("expected ErrInvalidOrigin, got %v", err)
	}
	if err := h.SetOrigin("https://new.example"); err != nil {
		t.Fatalf("set origin: %v", err)
	}
	cfg, err := h.Current(time.Now())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got := cfg.LinkedDids[0].CredentialSubject.Origin; got != "https://new.example" {
		t.Fatalf("origin = %q", got)
	}
}

func TestProofSignatureUsesAdapterHex(t *testing.T) {
	s, err := signer.FromSeed(signer.Ed25519, make([]byte, 32))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	cfg, err := Issue("did:kilt:4abc", "https://box.example", "did:kilt:4abc#0x01", s, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	linked := cfg.LinkedDids[0]
	root, err := hex.DecodeString(strings.TrimPrefix(linked.CredentialSubject.RootHash, "0x"))
	if err != nil {
		t.Fatalf("root hash: %v", err)
	}
	sig, err := s.Sign(root)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if linked.Proof.Signature != signer.Hex(sig) {
		t.Fatalf("proof signature = %s, want %s", linked.Proof.Signature, signer.Hex(sig))
	}
}
