package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/claimstore"
	"olibox/agent/internal/did"
	"olibox/agent/internal/keyvault"
	"olibox/agent/internal/ledger"
	"olibox/agent/internal/login"
	"olibox/agent/pkg/models"
)

var ErrEmptyCall = errors.New("call is empty")

type Options struct {
	Vault       *keyvault.Vault
	Chain       BlockSource
	Resolver    *did.Resolver
	Submitter   *ledger.Submitter
	Claims      *claimstore.Store
	Login       *login.Client
	LoginReq    login.LoginRequest
	Tokens      *login.TokenCache
	Attester    *login.AttesterClient
	AttesterURL string
	Logger      *slog.Logger
}

type Service struct {
	vault       *keyvault.Vault
	chain       BlockSource
	resolver    *did.Resolver
	submitter   *ledger.Submitter
	claims      *claimstore.Store
	login       *login.Client
	loginReq    login.LoginRequest
	tokens      *login.TokenCache
	attester    *login.AttesterClient
	attesterURL string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tokens == nil {
		opts.Tokens = login.NewTokenCache()
	}
	return &Service{
		vault:       opts.Vault,
		chain:       opts.Chain,
		resolver:    opts.Resolver,
		submitter:   opts.Submitter,
		claims:      opts.Claims,
		login:       opts.Login,
		loginReq:    opts.LoginReq,
		tokens:      opts.Tokens,
		attester:    opts.Attester,
		attesterURL: opts.AttesterURL,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// RegisterDid creates the device DID on the ledger, paid by the payment
// account, and waits for finality.
func (s *Service) RegisterDid(ctx context.Context) (ledger.TxHash, error) {
	m := s.vault.Manager()
	owner := m.DidAuthSigner()
	call, err := ledger.SignCreateDid(owner, ledger.CreateDidDetails{
		Did:       owner.AccountID(),
		Submitter: m.PaymentSigner().AccountID(),
	})
	if err != nil {
		return ledger.TxHash{}, apperr.Wrap(apperr.CategoryInternal, err)
	}
	hash, err := s.submitter.SubmitCall(ctx, m.PaymentSigner(), call, ledger.WaitFinalized)
	if err != nil {
		s.log(ctx, slog.LevelWarn, "register_did", "", "did registration failed", "did", m.DID(), "error", err.Error())
		return hash, err
	}
	s.log(ctx, slog.LevelInfo, "register_did", hash.String(), "did registered", "did", m.DID())
	return hash, nil
}

// Did reports the device DID and whether the ledger knows it.
func (s *Service) Did(ctx context.Context) (models.DidResponse, error) {
	didURI := s.vault.DID()
	out := models.DidResponse{Did: didURI}
	if _, err := s.resolver.Document(ctx, didURI); err != nil {
		if errors.Is(err, apperr.ErrDidNotFound) {
			return out, nil
		}
		return out, err
	}
	out.Registered = true
	name, err := s.resolver.Web3Name(ctx, didURI)
	if err != nil {
		return out, err
	}
	out.Web3Name = name
	return out, nil
}

// ResetDid replaces the DID authentication key, forgets the login token
// bound to the old DID and drops the stored base claims.
func (s *Service) ResetDid(ctx context.Context) (string, error) {
	previous := s.vault.DID()
	m, err := s.vault.ResetDidAuthKey(ctx)
	if err != nil {
		return "", err
	}
	s.tokens.Reset()
	removed, err := s.claims.RemoveAll()
	if err != nil {
		return m.DID(), err
	}
	s.log(ctx, slog.LevelInfo, "reset_did", "", "did reset", "did", m.DID(), "previous_did", previous, "claims_removed", removed)
	return m.DID(), nil
}

func (s *Service) PaymentAddress() string { return s.vault.Manager().PaymentAddress() }

// SubmitPayment submits a hex-encoded call paid by the payment account.
func (s *Service) SubmitPayment(ctx context.Context, hexCall string) (ledger.TxHash, error) {
	call, err := models.DecodeHex(hexCall)
	if err != nil {
		return ledger.TxHash{}, apperr.Format(err)
	}
	if len(call) == 0 {
		return ledger.TxHash{}, apperr.Format(ErrEmptyCall)
	}
	m := s.vault.Manager()
	hash, err := s.submitter.SubmitCall(ctx, m.PaymentSigner(), call, ledger.WaitFinalized)
	if err != nil {
		return hash, err
	}
	s.log(ctx, slog.LevelInfo, "submit_payment", hash.String(), "payment call finalized", "payment_address", m.PaymentAddress())
	return hash, nil
}

// PostClaim forwards a base claim to the attester and stores it for mode.
// Nothing is stored when the attester rejects the request.
func (s *Service) PostClaim(ctx context.Context, mode claimstore.Mode, credential models.Credential) error {
	token, err := s.ensureToken(ctx)
	if err != nil {
		return err
	}
	if err := s.attester.PostAttestationRequest(ctx, token, credential); err != nil {
		return err
	}
	if err := s.claims.Save(mode, credential); err != nil {
		return err
	}
	s.log(ctx, slog.LevelInfo, "post_claim", "", "base claim stored", "mode", string(mode), "claim_hash", credential.RootHash)
	return nil
}

func (s *Service) Claim(mode claimstore.Mode) (models.Credential, error) {
	return s.claims.Load(mode)
}

// Credentials lists the attestation requests the attester holds for this
// device.
func (s *Service) Credentials(ctx context.Context) (json.RawMessage, error) {
	token, err := s.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.attester.GetAttestations(ctx, token)
}

func (s *Service) ensureToken(ctx context.Context) (string, error) {
	return s.tokens.Ensure(ctx, func(ctx context.Context) (string, error) {
		return s.login.Login(ctx, s.loginReq, s.vault.DidAuthSigner(), s.resolver)
	})
}
