// Package session implements the encrypted challenge-response handshake
// with a browser wallet and the credential messages exchanged afterwards.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/ledger"
	"olibox/agent/pkg/models"

	"github.com/google/uuid"
)

const componentName = "session"

var (
	ErrChallengeMissing  = errors.New("no pending challenge for session")
	ErrChallengeDecrypt  = errors.New("unable to decrypt challenge")
	ErrChallengeMismatch = errors.New("challenge does not match")
	ErrNotVerified       = errors.New("session has no verified encryption key")
	ErrMessageDecrypt    = errors.New("unable to decrypt message")
	ErrMessageFormat     = errors.New("malformed message")
	ErrHashFormat        = errors.New("claim hash or ctype hash have a wrong format")
)

// ChallengeRecorder counts handshake outcomes.
type ChallengeRecorder interface {
	RecordChallenge(result string)
}

// PayerSource hands out the account that pays attestation fees.
type PayerSource interface {
	PaymentSigner() signer.Signer
}

// Attester is the DID under which attestations are written.
type Attester struct {
	Did    string
	Signer signer.Signer
}

type Options struct {
	AppName   string
	KeyURI    string
	Keys      *crypto.KeyPair
	Store     *Store
	Resolver  *did.Resolver
	Builder   *ledger.Builder
	Submitter *ledger.Submitter
	Attester  Attester
	Payer     PayerSource
	Metrics   ChallengeRecorder
	Logger    *slog.Logger
}

type Service struct {
	appName   string
	keyURI    string
	keys      *crypto.KeyPair
	store     *Store
	resolver  *did.Resolver
	builder   *ledger.Builder
	submitter *ledger.Submitter
	attester  Attester
	payer     PayerSource
	metrics   ChallengeRecorder
	logger    *slog.Logger
	replay    *crypto.ReplayGuard
	now       func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Keys == nil {
		return nil, errors.New("session encryption key is required")
	}
	if _, _, err := did.ParseKeyURI(opts.KeyURI); err != nil {
		return nil, fmt.Errorf("session encryption key uri: %w", err)
	}
	switch {
	case opts.Resolver == nil:
		return nil, errors.New("session resolver is required")
	case opts.Builder == nil:
		return nil, errors.New("session call builder is required")
	case opts.Submitter == nil:
		return nil, errors.New("session submitter is required")
	case opts.Payer == nil:
		return nil, errors.New("session payer is required")
	}
	if opts.Store == nil {
		opts.Store = NewStore(DefaultTTL)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		appName:   opts.AppName,
		keyURI:    opts.KeyURI,
		keys:      opts.Keys,
		store:     opts.Store,
		resolver:  opts.Resolver,
		builder:   opts.Builder,
		submitter: opts.Submitter,
		attester:  opts.Attester,
		payer:     opts.Payer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		replay:    crypto.NewReplayGuard(opts.Store.ttl),
		now:       time.Now,
	}, nil
}

func (s *Service) Store() *Store { return s.store }

// Sweep drops expired sessions and forgets senders idle for a session TTL.
func (s *Service) Sweep(now time.Time) {
	s.store.Sweep()
	s.replay.Sweep(now)
}

// IssueChallenge stores a fresh random challenge on the session, replacing
// any earlier one.
func (s *Service) IssueChallenge(sessionID string) (models.ChallengeData, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return models.ChallengeData{}, apperr.Challenge(fmt.Errorf("generate challenge: %w", err))
	}
	challenge := id[:]
	s.store.putChallenge(sessionID, challenge)
	s.recordChallenge("issued")
	return models.ChallengeData{
		AppName:          s.appName,
		EncryptionKeyURI: s.keyURI,
		Challenge:        models.ByteList(append([]byte(nil), challenge...)),
	}, nil
}

// VerifyChallengeResponse opens the wallet's answer with the sender key of
// its light DID. The pending challenge is consumed whatever the outcome.
// On a match the key URI is bound to the session.
func (s *Service) VerifyChallengeResponse(ctx context.Context, sessionID string, resp models.ChallengeResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	challenge, ok := s.store.takeChallenge(sessionID)
	if !ok {
		return s.rejectChallenge(sessionID, apperr.Challenge(ErrChallengeMissing))
	}
	peer, err := did.ParseLightDidEncryptionKey(resp.EncryptionKeyURI)
	if err != nil {
		return s.rejectChallenge(sessionID, err)
	}
	plain, err := s.keys.Open(resp.EncryptedChallenge, resp.Nonce, peer)
	if err != nil {
		return s.rejectChallenge(sessionID, apperr.Challenge(fmt.Errorf("%w: %v", ErrChallengeDecrypt, err)))
	}
	if subtle.ConstantTimeCompare(plain, challenge) != 1 {
		return s.rejectChallenge(sessionID, apperr.Challenge(ErrChallengeMismatch))
	}
	s.store.bindKeyURI(sessionID, resp.EncryptionKeyURI)
	s.recordChallenge("accepted")
	s.logger.Info("challenge accepted",
		"component", componentName,
		"operation", "verify_challenge",
		"session_id", sessionID,
		"key_uri", resp.EncryptionKeyURI,
	)
	return nil
}

func (s *Service) rejectChallenge(sessionID string, err error) error {
	s.recordChallenge("rejected")
	s.logger.Warn("challenge rejected",
		"component", componentName,
		"operation", "verify_challenge",
		"session_id", sessionID,
		"error", err.Error(),
	)
	return err
}

func (s *Service) recordChallenge(result string) {
	if s.metrics != nil {
		s.metrics.RecordChallenge(result)
	}
}

// SubmitTerms answers a verified session with a submit-terms message for
// claim, sealed to the session's light DID key.
func (s *Service) SubmitTerms(ctx context.Context, sessionID string, claim models.Claim) (models.EncryptedMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.EncryptedMessage{}, err
	}
	receiver, ok := s.store.KeyURI(sessionID)
	if !ok {
		return models.EncryptedMessage{}, apperr.Challenge(ErrNotVerified)
	}
	peer, err := did.ParseLightDidEncryptionKey(receiver)
	if err != nil {
		return models.EncryptedMessage{}, err
	}
	content, err := json.Marshal(models.SubmitTermsContent{
		Claim:         claim,
		Legitimations: []string{},
		CTypes:        []string{claim.CTypeHash},
	})
	if err != nil {
		return models.EncryptedMessage{}, apperr.Attestation(fmt.Errorf("encode terms: %w", err))
	}
	sender, _, _ := strings.Cut(s.keyURI, "#")
	msg := models.Message{
		Body:      models.MessageBody{Type: models.MessageTypeSubmitTerms, Content: content},
		CreatedAt: uint64(s.now().UnixMilli()),
		Sender:    sender,
		Receiver:  receiver,
		MessageID: uuid.NewString(),
	}
	plain, err := json.Marshal(msg)
	if err != nil {
		return models.EncryptedMessage{}, apperr.Attestation(fmt.Errorf("encode message: %w", err))
	}
	ciphertext, nonce, err := s.keys.Seal(plain, peer)
	if err != nil {
		return models.EncryptedMessage{}, apperr.Attestation(fmt.Errorf("seal message: %w", err))
	}
	s.logger.Info("terms submitted",
		"component", componentName,
		"operation", "submit_terms",
		"session_id", sessionID,
		"message_id", msg.MessageID,
	)
	return models.EncryptedMessage{
		Ciphertext:     ciphertext,
		Nonce:          nonce[:],
		SenderKeyURI:   s.keyURI,
		ReceiverKeyURI: receiver,
	}, nil
}

// RequestAttestation opens a request-attestation message from a full DID,
// validates the credential hashes and writes the attestation to the ledger,
// waiting for finality.
func (s *Service) RequestAttestation(ctx context.Context, encrypted models.EncryptedMessage) (ledger.TxHash, error) {
	peer, err := s.resolver.FullDidEncryptionKey(ctx, encrypted.SenderKeyURI)
	if err != nil {
		return ledger.TxHash{}, err
	}
	plain, err := s.keys.Open(encrypted.Ciphertext, encrypted.Nonce, peer)
	if err != nil {
		return ledger.TxHash{}, apperr.Attestation(fmt.Errorf("%w: %v", ErrMessageDecrypt, err))
	}
	if err := s.replay.Check(encrypted.SenderKeyURI, encrypted.Nonce); err != nil {
		return ledger.TxHash{}, apperr.Attestation(err)
	}

	var msg models.Message
	if err := json.Unmarshal(plain, &msg); err != nil {
		return ledger.TxHash{}, apperr.Attestation(fmt.Errorf("%w: %v", ErrMessageFormat, err))
	}
	msg = models.NormalizeMessage(msg)
	if msg.Body.Type != models.MessageTypeRequestAttestation {
		return ledger.TxHash{}, apperr.Attestation(fmt.Errorf("%w: unexpected type %q", ErrMessageFormat, msg.Body.Type))
	}
	var content models.RequestAttestationContent
	if err := json.Unmarshal(msg.Body.Content, &content); err != nil {
		return ledger.TxHash{}, apperr.Attestation(fmt.Errorf("%w: %v", ErrMessageFormat, err))
	}
	ctypeHash, err := decodeHash(content.Credential.Claim.CTypeHash)
	if err != nil {
		return ledger.TxHash{}, err
	}
	claimHash, err := decodeHash(content.Credential.RootHash)
	if err != nil {
		return ledger.TxHash{}, err
	}

	tx, err := s.builder.BuildAndSignForDID(ctx, s.attester.Did, s.attester.Signer, s.payer.PaymentSigner(), ledger.CreateClaimCall(claimHash, ctypeHash))
	if err != nil {
		return ledger.TxHash{}, err
	}
	hash, err := s.submitter.Submit(ctx, tx, ledger.WaitFinalized)
	if err != nil {
		return hash, err
	}
	s.logger.Info("attestation written",
		"component", componentName,
		"operation", "request_attestation",
		"message_id", msg.MessageID,
		"claim_hash", models.HexBytes(claimHash[:]).String(),
		"tx_hash", hash.String(),
	)
	return hash, nil
}

func decodeHash(raw string) ([32]byte, error) {
	var out [32]byte
	b, err := models.DecodeHex(raw)
	if err != nil || len(b) != len(out) {
		return out, apperr.Attestation(ErrHashFormat)
	}
	copy(out[:], b)
	return out, nil
}
