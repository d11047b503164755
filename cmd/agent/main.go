package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"olibox/agent/internal/api"
	"olibox/agent/internal/app"
	"olibox/agent/internal/claimstore"
	"olibox/agent/internal/config"
	"olibox/agent/internal/crypto"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/keyvault"
	"olibox/agent/internal/ledger"
	"olibox/agent/internal/ledger/memledger"
	"olibox/agent/internal/login"
	"olibox/agent/internal/metrics"
	"olibox/agent/internal/platform/privacylog"
	"olibox/agent/internal/platform/ratelimiter"
	"olibox/agent/internal/session"
	"olibox/agent/internal/usecase"
	"olibox/agent/internal/wellknown"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const sweepInterval = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to agent.yaml (optional)")
	listenAddr := flag.String("listen", "", "HTTP listen address override")
	transport := flag.String("transport", "", "Ledger transport override: mock")
	flag.Parse()
	if *showVersion {
		fmt.Printf("olibox-agent version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}
	if *listenAddr != "" {
		_ = os.Setenv("OLIBOX_LISTEN_ADDR", *listenAddr)
	}
	if *transport != "" {
		_ = os.Setenv("OLIBOX_LEDGER_TRANSPORT", *transport)
	}

	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("olibox-agent config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, sweep, err := build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("olibox-agent failed to initialize: %v", err)
	}
	go sweepLoop(ctx, sweep)

	logger.Info("olibox-agent starting", "component", "main", "operation", "start", "version", version)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("olibox-agent failed: %v", err)
	}
	logger.Info("olibox-agent stopped", "component", "main", "operation", "stop")
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*api.Server, func(time.Time), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	alg, err := signer.ParseAlgorithm(cfg.KeyFile.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	entropy, err := keyvault.ParseEntropySource(cfg.KeyFile.Entropy)
	if err != nil {
		return nil, nil, err
	}
	vault, err := keyvault.Init(ctx, keyvault.Options{
		Path:       cfg.KeyFile.Path,
		Passphrase: cfg.KeyFile.Passphrase,
		Algorithm:  alg,
		Entropy:    entropy,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("key vault: %w", err)
	}

	// config.Validate only admits the in-memory transport.
	chain := memledger.New()
	resolver := did.NewResolver(chain)
	builder := ledger.NewBuilder(chain)
	submitter := ledger.NewSubmitter(chain, logger, m)
	claims := claimstore.New(cfg.ClaimDir, cfg.KeyFile.Passphrase)

	appSvc := app.NewService(app.Options{
		Vault:     vault,
		Chain:     chain,
		Resolver:  resolver,
		Submitter: submitter,
		Claims:    claims,
		Login:     login.NewClient(logger, m, cfg.Login.Timeout),
		LoginReq: login.LoginRequest{
			ClientID:     cfg.Login.ClientID,
			AuthEndpoint: cfg.Login.AuthEndpoint,
			RedirectURL:  cfg.Login.RedirectURL,
		},
		Tokens:      login.NewTokenCache(),
		Attester:    login.NewAttesterClient(cfg.Login.AttesterEndpoint, cfg.Login.Timeout, logger),
		AttesterURL: cfg.Login.AttesterEndpoint,
		Logger:      logger,
	})
	useCases := usecase.New(usecase.Options{
		Identity:     vault,
		Resolver:     resolver,
		Builder:      builder,
		Submitter:    submitter,
		Claims:       claims,
		EndpointID:   cfg.UseCase.EndpointID,
		EndpointType: cfg.UseCase.EndpointType,
		Timeout:      cfg.UseCase.Timeout,
		Logger:       logger,
	})

	var sessions *session.Service
	if cfg.SessionEnabled() {
		keys, err := crypto.KeyPairFromHex(cfg.Session.SecretKey)
		if err != nil {
			return nil, nil, fmt.Errorf("session secret key: %w", err)
		}
		attesterSigner, err := signer.FromSecret(alg, cfg.Attester.Seed)
		if err != nil {
			return nil, nil, fmt.Errorf("attester seed: %w", err)
		}
		// The in-memory ledger starts empty, so the attester DID is created here.
		attester, keyURI, err := session.ProvisionAttester(ctx, resolver, submitter, attesterSigner, vault.PaymentSigner(), keys)
		if err != nil {
			return nil, nil, fmt.Errorf("provision attester: %w", err)
		}
		if cfg.Attester.Did != "" && cfg.Attester.Did != attester.Did {
			return nil, nil, fmt.Errorf("attester did %s is not owned by the attester seed", cfg.Attester.Did)
		}
		if cfg.Session.EncryptionKeyURI != "" && cfg.Session.EncryptionKeyURI != keyURI {
			return nil, nil, fmt.Errorf("session key uri %s does not match the attester key agreement key", cfg.Session.EncryptionKeyURI)
		}
		sessions, err = session.NewService(session.Options{
			AppName:   cfg.Session.AppName,
			KeyURI:    keyURI,
			Keys:      keys,
			Store:     session.NewStore(cfg.Session.TTL),
			Resolver:  resolver,
			Builder:   builder,
			Submitter: submitter,
			Attester:  attester,
			Payer:     vault,
			Metrics:   m,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("session identity is not configured; wallet routes disabled", "component", "main", "operation", "build")
	}

	var holder *wellknown.Holder
	if cfg.WellKnownEnabled() {
		s, err := signer.FromSecret(alg, cfg.WellKnown.Seed)
		if err != nil {
			return nil, nil, fmt.Errorf("well-known seed: %w", err)
		}
		holder = wellknown.NewHolder(cfg.WellKnown.Did, cfg.WellKnown.KeyURI, cfg.WellKnown.Origin, s)
	}

	limiter := ratelimiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	srv := api.NewServer(api.Options{
		Addr:      cfg.ListenAddr,
		App:       appSvc,
		Session:   sessions,
		UseCase:   useCases,
		WellKnown: holder,
		Limiter:   limiter,
		Metrics:   m,
		Gatherer:  reg,
		Logger:    logger,
	})
	sweep := func(now time.Time) {
		limiter.Sweep(now)
		if sessions != nil {
			sessions.Sweep(now)
		}
	}
	return srv, sweep, nil
}

func sweepLoop(ctx context.Context, sweep func(time.Time)) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweep(now)
		}
	}
}
