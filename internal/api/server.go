// Package api exposes the agent over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"olibox/agent/internal/app"
	"olibox/agent/internal/metrics"
	"olibox/agent/internal/platform/ratelimiter"
	"olibox/agent/internal/session"
	"olibox/agent/internal/usecase"
	"olibox/agent/internal/wellknown"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultAddr = "127.0.0.1:3333"

	componentName   = "api"
	shutdownTimeout = 5 * time.Second
)

type Options struct {
	Addr      string
	App       *app.Service
	Session   *session.Service
	UseCase   *usecase.Service
	WellKnown *wellknown.Holder
	Limiter   *ratelimiter.MapLimiter
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

type Server struct {
	httpServer *http.Server
	app        *app.Service
	session    *session.Service
	useCase    *usecase.Service
	wellKnown  *wellknown.Holder
	limiter    *ratelimiter.MapLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	exit       func(int)
}

// NewServer registers every route. The session and well-known routes answer
// 404 when their component is not configured.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		app:       opts.App,
		session:   opts.Session,
		useCase:   opts.UseCase,
		wellKnown: opts.WellKnown,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
		exit:      os.Exit,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.recoverPanics(s.rateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(opts.Gatherer))
	}

	s.route(mux, "GET /api/v1/doctor", "doctor", s.handleDoctor)

	s.route(mux, "GET /api/v1/did", "get_did", s.handleGetDid)
	s.route(mux, "POST /api/v1/did", "register_did", s.handleRegisterDid)
	s.route(mux, "DELETE /api/v1/did", "reset_did", s.handleResetDid)

	s.route(mux, "GET /api/v1/payment", "payment_address", s.handlePaymentAddress)
	s.route(mux, "POST /api/v1/payment", "submit_payment", s.handleSubmitPayment)

	s.route(mux, "GET /api/v1/claim/{mode}", "get_claim", s.handleGetClaim)
	s.route(mux, "POST /api/v1/claim/{mode}", "post_claim", s.handlePostClaim)

	s.route(mux, "GET /api/v1/credential", "list_credentials", s.handleCredentials)
	s.route(mux, "POST /api/v1/credential/terms", "submit_terms", s.handleSubmitTerms)
	s.route(mux, "POST /api/v1/credential", "request_attestation", s.handleRequestAttestation)

	s.route(mux, "GET /api/v1/challenge", "issue_challenge", s.handleIssueChallenge)
	s.route(mux, "POST /api/v1/challenge", "verify_challenge", s.handleVerifyChallenge)

	s.route(mux, "GET /api/v1/use-case", "current_use_case", s.handleCurrentUseCase)
	s.route(mux, "POST /api/v1/use-case", "participate_use_case", s.handleParticipate)

	s.route(mux, "GET /.well-known/did-configuration.json", "well_known_config", s.handleWellKnown)
	s.route(mux, "POST /.well-known/did-configuration.json", "well_known_origin", s.handleWellKnownOrigin)
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.logger.Info("api listening", "component", componentName, "operation", "run", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) route(mux *http.ServeMux, pattern, operation string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		started := s.now()
		defer s.metrics.ObserveOp(operation, started)
		h(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
