package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/ledger"
	"olibox/agent/internal/ledger/memledger"
	"olibox/agent/internal/session"
	"olibox/agent/internal/testutil/wallet"
	"olibox/agent/pkg/models"
)

type payerSource struct{ s signer.Signer }

func (p payerSource) PaymentSigner() signer.Signer { return p.s }

type challengeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *challengeCounter) RecordChallenge(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[result]++
}

func (c *challengeCounter) get(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[result]
}

type fixture struct {
	chain      *memledger.Ledger
	svc        *session.Service
	agentKeys  *crypto.KeyPair
	wallet     *crypto.KeyPair
	attester   signer.Signer
	lightURI   string
	claimerURI string
	counter    *challengeCounter
}

func seededSigner(t *testing.T, b byte) signer.Signer {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = b
	s, err := signer.FromSeed(signer.Sr25519, seed)
	if err != nil {
		t.Fatalf("signer %d: %v", b, err)
	}
	return s
}

func registerDid(t *testing.T, submitter *ledger.Submitter, owner, payer signer.Signer, enc [32]byte) {
	t.Helper()
	call, err := ledger.SignCreateDid(owner, ledger.CreateDidDetails{
		Did:              owner.AccountID(),
		Submitter:        payer.AccountID(),
		KeyAgreementKeys: [][32]byte{enc},
	})
	if err != nil {
		t.Fatalf("sign create: %v", err)
	}
	if _, err := submitter.SubmitCall(context.Background(), payer, call, ledger.WaitFinalized); err != nil {
		t.Fatalf("create did: %v", err)
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := memledger.New()
	submitter := ledger.NewSubmitter(chain, logger, nil)
	resolver := did.NewResolver(chain)

	agentKeys, walletKeys := wallet.KeyPair(t), wallet.KeyPair(t)
	attester := seededSigner(t, 3)
	claimer := seededSigner(t, 4)
	payer := seededSigner(t, 9)
	registerDid(t, submitter, attester, payer, agentKeys.Public)
	registerDid(t, submitter, claimer, payer, walletKeys.Public)

	attesterDid := did.FromAccount(attester.AccountID())
	agentKeyURI, err := resolver.KeyAgreementKeyURI(ctx, attesterDid)
	if err != nil {
		t.Fatalf("agent key uri: %v", err)
	}
	claimerURI, err := resolver.KeyAgreementKeyURI(ctx, did.FromAccount(claimer.AccountID()))
	if err != nil {
		t.Fatalf("claimer key uri: %v", err)
	}
	light := wallet.LightDid(t, claimer.Address(), walletKeys.Public)

	counter := &challengeCounter{}
	svc, err := session.NewService(session.Options{
		AppName:   "olibox",
		KeyURI:    agentKeyURI,
		Keys:      agentKeys,
		Store:     session.NewStore(session.DefaultTTL),
		Resolver:  resolver,
		Builder:   ledger.NewBuilder(chain),
		Submitter: submitter,
		Attester:  session.Attester{Did: attesterDid, Signer: attester},
		Payer:     payerSource{s: payer},
		Metrics:   counter,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{
		chain:      chain,
		svc:        svc,
		agentKeys:  agentKeys,
		wallet:     walletKeys,
		attester:   attester,
		lightURI:   light + "#encryption",
		claimerURI: claimerURI,
		counter:    counter,
	}
}

func (f fixture) answer(t *testing.T, sealer *crypto.KeyPair, payload []byte) models.ChallengeResponse {
	t.Helper()
	ciphertext, nonce, err := sealer.Seal(payload, f.agentKeys.Public)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return models.ChallengeResponse{EncryptionKeyURI: f.lightURI, EncryptedChallenge: ciphertext, Nonce: nonce[:]}
}

func TestChallengeAccepted(t *testing.T) {
	f := newFixture(t)
	sid := f.svc.Store().Ensure("")
	data, err := f.svc.IssueChallenge(sid)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(data.Challenge) != 16 || data.AppName != "olibox" || !strings.Contains(data.EncryptionKeyURI, "#0x") {
		t.Fatalf("unexpected challenge data %+v", data)
	}
	if err := f.svc.VerifyChallengeResponse(context.Background(), sid, f.answer(t, f.wallet, data.Challenge)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got, ok := f.svc.Store().KeyURI(sid); !ok || got != f.lightURI {
		t.Fatalf("session key uri = %q, %v", got, ok)
	}
	if f.counter.get("accepted") != 1 {
		t.Fatal("accepted challenge must be counted")
	}
}

func TestChallengeRejections(t *testing.T) {
	cases := []struct {
		name     string
		response func(t *testing.T, f fixture, challenge []byte) models.ChallengeResponse
		want     error
		category string
	}{
		{
			name: "wrong value",
			response: func(t *testing.T, f fixture, _ []byte) models.ChallengeResponse {
				return f.answer(t, f.wallet, make([]byte, 16))
			},
			want:     session.ErrChallengeMismatch,
			category: apperr.CategoryChallenge,
		},
		{
			name: "wrong key",
			response: func(t *testing.T, f fixture, challenge []byte) models.ChallengeResponse {
				return f.answer(t, wallet.KeyPair(t), challenge)
			},
			want:     session.ErrChallengeDecrypt,
			category: apperr.CategoryChallenge,
		},
		{
			name: "malformed light did",
			response: func(t *testing.T, f fixture, challenge []byte) models.ChallengeResponse {
				resp := f.answer(t, f.wallet, challenge)
				resp.EncryptionKeyURI = "did:kilt:light:00abc:zzz#encryption"
				return resp
			},
			want:     did.ErrLightDid,
			category: apperr.CategoryLightDid,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			sid := f.svc.Store().Ensure("")
			data, err := f.svc.IssueChallenge(sid)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			err = f.svc.VerifyChallengeResponse(context.Background(), sid, tc.response(t, f, data.Challenge))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := apperr.Category(err); got != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, got)
			}
			if _, ok := f.svc.Store().KeyURI(sid); ok {
				t.Fatal("rejected response must not bind a key")
			}
			retry := f.answer(t, f.wallet, data.Challenge)
			if err := f.svc.VerifyChallengeResponse(context.Background(), sid, retry); !errors.Is(err, session.ErrChallengeMissing) {
				t.Fatalf("challenge must be consumed, got %v", err)
			}
			if f.counter.get("rejected") != 2 {
				t.Fatalf("expected two rejections, got %d", f.counter.get("rejected"))
			}
		})
	}
}

func TestSubmitTermsRequiresVerifiedSession(t *testing.T) {
	f := newFixture(t)
	sid := f.svc.Store().Ensure("")
	claim := models.Claim{CTypeHash: "0x" + strings.Repeat("ab", 32), Contents: json.RawMessage(`{"name":"box"}`), Owner: "did:kilt:x"}
	if _, err := f.svc.SubmitTerms(context.Background(), sid, claim); !errors.Is(err, session.ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	data, err := f.svc.IssueChallenge(sid)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.svc.VerifyChallengeResponse(context.Background(), sid, f.answer(t, f.wallet, data.Challenge)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	encrypted, err := f.svc.SubmitTerms(context.Background(), sid, claim)
	if err != nil {
		t.Fatalf("submit terms: %v", err)
	}
	if encrypted.ReceiverKeyURI != f.lightURI || encrypted.SenderKeyURI != data.EncryptionKeyURI {
		t.Fatalf("unexpected key uris %+v", encrypted)
	}
	plain, err := f.wallet.Open(encrypted.Ciphertext, encrypted.Nonce, f.agentKeys.Public)
	if err != nil {
		t.Fatalf("wallet open: %v", err)
	}
	var msg models.Message
	if err := json.Unmarshal(plain, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Body.Type != models.MessageTypeSubmitTerms || msg.Receiver != f.lightURI || msg.MessageID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Sender != did.FromAccount(f.attester.AccountID()) {
		t.Fatalf("sender must be the agent did, got %q", msg.Sender)
	}
	var content models.SubmitTermsContent
	if err := json.Unmarshal(msg.Body.Content, &content); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if len(content.CTypes) != 1 || content.CTypes[0] != claim.CTypeHash {
		t.Fatalf("unexpected ctypes %v", content.CTypes)
	}
}

func (f fixture) attestationRequest(t *testing.T, rootHash, ctypeHash string) models.EncryptedMessage {
	t.Helper()
	content, err := json.Marshal(models.RequestAttestationContent{Credential: models.Credential{
		Claim:    models.Claim{CTypeHash: ctypeHash, Contents: json.RawMessage(`{}`), Owner: "did:kilt:x"},
		RootHash: rootHash,
	}})
	if err != nil {
		t.Fatalf("encode content: %v", err)
	}
	plain, err := json.Marshal(models.Message{
		Body:      models.MessageBody{Type: models.MessageTypeRequestAttestation, Content: content},
		Sender:    f.claimerURI,
		MessageID: "m-1",
	})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	ciphertext, nonce, err := f.wallet.Seal(plain, f.agentKeys.Public)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return models.EncryptedMessage{Ciphertext: ciphertext, Nonce: nonce[:], SenderKeyURI: f.claimerURI}
}

func TestRequestAttestationWritesClaim(t *testing.T) {
	f := newFixture(t)
	root := "0x" + strings.Repeat("11", 32)
	ctype := "0x" + strings.Repeat("22", 32)
	req := f.attestationRequest(t, root, ctype)
	if _, err := f.svc.RequestAttestation(context.Background(), req); err != nil {
		t.Fatalf("request attestation: %v", err)
	}
	var claimHash [32]byte
	for i := range claimHash {
		claimHash[i] = 0x11
	}
	att, ok := f.chain.Attestation(claimHash)
	if !ok {
		t.Fatal("attestation must be recorded on the ledger")
	}
	if att.Attester != f.attester.AccountID() || att.CtypeHash[0] != 0x22 {
		t.Fatalf("unexpected attestation %+v", att)
	}

	if _, err := f.svc.RequestAttestation(context.Background(), req); !errors.Is(err, crypto.ErrReplay) {
		t.Fatalf("replayed message must be rejected, got %v", err)
	}
}

func TestRequestAttestationRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	good := "0x" + strings.Repeat("11", 32)

	short := f.attestationRequest(t, "0x1234", good)
	_, err := f.svc.RequestAttestation(context.Background(), short)
	if !errors.Is(err, session.ErrHashFormat) || apperr.Category(err) != apperr.CategoryAttestation {
		t.Fatalf("expected attestation ErrHashFormat, got %v", err)
	}

	tampered := f.attestationRequest(t, good, good)
	tampered.Ciphertext[0] ^= 0xff
	if _, err := f.svc.RequestAttestation(context.Background(), tampered); !errors.Is(err, session.ErrMessageDecrypt) {
		t.Fatalf("expected ErrMessageDecrypt, got %v", err)
	}

	unknown := f.attestationRequest(t, good, good)
	unknown.SenderKeyURI = did.FromAccount(signer.AccountID{9}) + "#0x" + strings.Repeat("00", 32)
	if _, err := f.svc.RequestAttestation(context.Background(), unknown); !errors.Is(err, apperr.ErrDidNotFound) {
		t.Fatalf("expected ErrDidNotFound, got %v", err)
	}
	if len(f.chain.Submissions()) != 2 {
		t.Fatal("rejected requests must not reach the ledger")
	}
}

func TestNewServiceRejectsMissingCollaborators(t *testing.T) {
	chain := memledger.New()
	full := func(t *testing.T) session.Options {
		attester := seededSigner(t, 3)
		attesterDid := did.FromAccount(attester.AccountID())
		return session.Options{
			KeyURI:    did.KeyURI(attesterDid, did.KeyID{2}),
			Keys:      wallet.KeyPair(t),
			Resolver:  did.NewResolver(chain),
			Builder:   ledger.NewBuilder(chain),
			Submitter: ledger.NewSubmitter(chain, nil, nil),
			Attester:  session.Attester{Did: attesterDid, Signer: attester},
			Payer:     payerSource{s: seededSigner(t, 9)},
		}
	}
	if _, err := session.NewService(full(t)); err != nil {
		t.Fatalf("complete options must be accepted: %v", err)
	}
	cases := map[string]func(*session.Options){
		"keys":      func(o *session.Options) { o.Keys = nil },
		"resolver":  func(o *session.Options) { o.Resolver = nil },
		"builder":   func(o *session.Options) { o.Builder = nil },
		"submitter": func(o *session.Options) { o.Submitter = nil },
		"payer":     func(o *session.Options) { o.Payer = nil },
	}
	for name, drop := range cases {
		t.Run(name, func(t *testing.T) {
			opts := full(t)
			drop(&opts)
			if svc, err := session.NewService(opts); err == nil || svc != nil {
				t.Fatalf("expected missing %s to be rejected", name)
			}
		})
	}
}
