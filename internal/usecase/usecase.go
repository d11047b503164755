// Package usecase records the device's participation in a use case as a
// DID service endpoint and notifies the use case service.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/claimstore"
	"olibox/agent/internal/did"
	"olibox/agent/internal/keyvault"
	"olibox/agent/internal/ledger"
	"olibox/agent/pkg/models"

	"github.com/go-resty/resty/v2"
)

const (
	componentName = "usecase"
	registerPath  = "/api/v1/device/register"
)

var (
	ErrUseCaseNotFound = fmt.Errorf("use case %w", apperr.ErrNotFound)
	ErrUseCaseFormat   = errors.New("use case endpoint has no usable url")
	ErrNotify          = errors.New("use case notification failed")
)

// Identity yields the current device keys. The key vault satisfies it.
type Identity interface {
	Manager() *keyvault.Manager
}

type Options struct {
	Identity     Identity
	Resolver     *did.Resolver
	Builder      *ledger.Builder
	Submitter    *ledger.Submitter
	Claims       *claimstore.Store
	EndpointID   string
	EndpointType string
	Timeout      time.Duration
	Logger       *slog.Logger
}

type Service struct {
	identity     Identity
	resolver     *did.Resolver
	builder      *ledger.Builder
	submitter    *ledger.Submitter
	claims       *claimstore.Store
	endpointID   string
	endpointType string
	http         *resty.Client
	logger       *slog.Logger
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		identity:     opts.Identity,
		resolver:     opts.Resolver,
		builder:      opts.Builder,
		submitter:    opts.Submitter,
		claims:       opts.Claims,
		endpointID:   opts.EndpointID,
		endpointType: opts.EndpointType,
		http:         resty.New().SetTimeout(opts.Timeout).SetHeader("Content-Type", "application/json"),
		logger:       opts.Logger,
	}
}

// Participate points the DID's use case endpoint at msg.UseCaseDidURL and,
// when asked, announces the device with its production base claim.
func (s *Service) Participate(ctx context.Context, msg models.UseCaseMessage) error {
	manager := s.identity.Manager()
	didURI := manager.DID()

	if msg.UpdateServiceEndpoint {
		_, err := s.resolver.ServiceEndpoint(ctx, didURI, s.endpointID)
		switch {
		case err == nil:
			if err := s.submitDidCall(ctx, manager, ledger.RemoveServiceEndpointCall(s.endpointID)); err != nil {
				return err
			}
		case errors.Is(err, did.ErrEndpointNotFound):
		default:
			return err
		}
		url := strings.TrimRight(msg.UseCaseDidURL, "/") + "/" + didURI
		if err := s.submitDidCall(ctx, manager, ledger.AddServiceEndpointCall(s.endpointID, s.endpointType, url)); err != nil {
			return err
		}
		s.logger.Info("use case endpoint updated",
			"component", componentName,
			"operation", "participate",
			"did", didURI,
			"use_case", msg.UseCase,
		)
	}

	if msg.NotifyUseCase {
		if err := s.notify(ctx, msg.UseCaseURL, didURI); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) submitDidCall(ctx context.Context, manager *keyvault.Manager, call []byte) error {
	tx, err := s.builder.BuildAndSign(ctx, manager.DidAuthSigner(), manager.PaymentSigner(), call)
	if err != nil {
		return err
	}
	_, err = s.submitter.Submit(ctx, tx, ledger.WaitFinalized)
	return err
}

func (s *Service) notify(ctx context.Context, useCaseURL, didURI string) error {
	credential, err := s.claims.Load(claimstore.ModeProduction)
	if err != nil {
		return err
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(models.UseCaseRegistration{DidURL: didURI, Presentation: credential}).
		Post(strings.TrimRight(useCaseURL, "/") + registerPath)
	if err != nil {
		return apperr.UseCase(fmt.Errorf("%w: %v", ErrNotify, err))
	}
	if resp.IsError() {
		return apperr.UseCase(fmt.Errorf("%w: status %d", ErrNotify, resp.StatusCode()))
	}
	s.logger.Info("use case notified",
		"component", componentName,
		"operation", "notify",
		"status", resp.StatusCode(),
	)
	return nil
}

// Current reads the use case from the first URL of the DID's use case
// endpoint.
func (s *Service) Current(ctx context.Context) (models.UseCase, error) {
	didURI := s.identity.Manager().DID()
	ep, err := s.resolver.ServiceEndpoint(ctx, didURI, s.endpointID)
	if errors.Is(err, did.ErrEndpointNotFound) {
		return models.UseCase{}, apperr.UseCase(ErrUseCaseNotFound)
	}
	if err != nil {
		return models.UseCase{}, err
	}
	if len(ep.URLs) == 0 || ep.URLs[0] == "" {
		return models.UseCase{}, apperr.UseCase(ErrUseCaseFormat)
	}
	url := ep.URLs[0]
	useCase, _, _ := strings.Cut(url, "/")
	if useCase == "" {
		return models.UseCase{}, apperr.UseCase(ErrUseCaseFormat)
	}
	return models.UseCase{UseCase: useCase, UseCaseURL: url}, nil
}
