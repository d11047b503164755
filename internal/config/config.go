// Package config loads the agent configuration from an optional YAML file
// and OLIBOX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/keyvault"

	"gopkg.in/yaml.v3"
)

const TransportMock = "mock"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ListenAddr string          `yaml:"listenAddr"`
	ClaimDir   string          `yaml:"claimDir"`
	Ledger     LedgerConfig    `yaml:"ledger"`
	KeyFile    KeyFileConfig   `yaml:"keyFile"`
	Login      LoginConfig     `yaml:"login"`
	Session    SessionConfig   `yaml:"session"`
	Attester   AttesterConfig  `yaml:"attester"`
	WellKnown  WellKnownConfig `yaml:"wellKnown"`
	UseCase    UseCaseConfig   `yaml:"useCase"`
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
}

type LedgerConfig struct {
	Transport string `yaml:"transport"`
}

type KeyFileConfig struct {
	Path       string `yaml:"path"`
	Passphrase string `yaml:"passphrase"`
	Algorithm  string `yaml:"algorithm"`
	Entropy    string `yaml:"entropy"`
}

type LoginConfig struct {
	AuthEndpoint     string        `yaml:"authEndpoint"`
	AttesterEndpoint string        `yaml:"attesterEndpoint"`
	ClientID         string        `yaml:"clientId"`
	RedirectURL      string        `yaml:"redirectUrl"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SessionConfig describes the agent's own encryption identity used for
// wallet sessions.
type SessionConfig struct {
	AppName          string        `yaml:"appName"`
	EncryptionKeyURI string        `yaml:"encryptionKeyUri"`
	SecretKey        string        `yaml:"secretKey"`
	TTL              time.Duration `yaml:"ttl"`
}

type AttesterConfig struct {
	Did  string `yaml:"did"`
	Seed string `yaml:"seed"`
}

type WellKnownConfig struct {
	Did    string `yaml:"did"`
	KeyURI string `yaml:"keyUri"`
	Origin string `yaml:"origin"`
	Seed   string `yaml:"seed"`
}

type UseCaseConfig struct {
	EndpointID   string        `yaml:"endpointId"`
	EndpointType string        `yaml:"endpointType"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	IdleTTL time.Duration `yaml:"idleTtl"`
}

func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:3333",
		ClaimDir:   ".",
		Ledger: LedgerConfig{
			Transport: TransportMock,
		},
		KeyFile: KeyFileConfig{
			Path:      "keys.json",
			Algorithm: "sr25519",
			Entropy:   "csprng",
		},
		Login: LoginConfig{
			ClientID: "olibox",
			Timeout:  10 * time.Second,
		},
		Session: SessionConfig{
			AppName: "olibox",
			TTL:     60 * time.Second,
		},
		UseCase: UseCaseConfig{
			EndpointID:   "use-case",
			EndpointType: "KiltUseCase",
			Timeout:      10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RPS:     20,
			Burst:   40,
			IdleTTL: 10 * time.Minute,
		},
	}
}

// LoadFromPath reads configPath, or the first readable default candidate
// when configPath is empty, then applies environment overrides. A missing
// default candidate is not an error; a missing explicit path is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/agent.yaml", "agent.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		break
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies OLIBOX_* variables over cfg.
func ApplyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ListenAddr, "LISTEN_ADDR")
	overrideString(&cfg.ClaimDir, "CLAIM_DIR")
	overrideString(&cfg.Ledger.Transport, "LEDGER_TRANSPORT")

	overrideString(&cfg.KeyFile.Path, "KEY_FILE")
	overrideString(&cfg.KeyFile.Passphrase, "KEY_PASSPHRASE")
	overrideString(&cfg.KeyFile.Algorithm, "KEY_ALGORITHM")
	overrideString(&cfg.KeyFile.Entropy, "ENTROPY")

	overrideString(&cfg.Login.AuthEndpoint, "AUTH_ENDPOINT")
	overrideString(&cfg.Login.AttesterEndpoint, "ATTESTER_ENDPOINT")
	overrideString(&cfg.Login.ClientID, "CLIENT_ID")
	overrideString(&cfg.Login.RedirectURL, "REDIRECT_URL")
	overrideDuration(&cfg.Login.Timeout, "HTTP_TIMEOUT")

	overrideString(&cfg.Session.AppName, "APP_NAME")
	overrideString(&cfg.Session.EncryptionKeyURI, "SESSION_KEY_URI")
	overrideString(&cfg.Session.SecretKey, "SESSION_SECRET_KEY")
	overrideDuration(&cfg.Session.TTL, "SESSION_TTL")

	overrideString(&cfg.Attester.Did, "ATTESTER_DID")
	overrideString(&cfg.Attester.Seed, "ATTESTER_SEED")

	overrideString(&cfg.WellKnown.Did, "WELL_KNOWN_DID")
	overrideString(&cfg.WellKnown.KeyURI, "WELL_KNOWN_KEY_URI")
	overrideString(&cfg.WellKnown.Origin, "WELL_KNOWN_ORIGIN")
	overrideString(&cfg.WellKnown.Seed, "WELL_KNOWN_SEED")

	overrideString(&cfg.UseCase.EndpointID, "USE_CASE_ENDPOINT_ID")
	overrideString(&cfg.UseCase.EndpointType, "USE_CASE_ENDPOINT_TYPE")
	overrideDuration(&cfg.UseCase.Timeout, "USE_CASE_TIMEOUT")

	overrideFloat(&cfg.RateLimit.RPS, "RATE_LIMIT_RPS")
	overrideClampedInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST", 1, 10_000)
	overrideDuration(&cfg.RateLimit.IdleTTL, "RATE_LIMIT_IDLE_TTL")
}

// Validate checks the fields that must parse before any component starts.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	}
	if c.Ledger.Transport != TransportMock {
		return fmt.Errorf("%w: unsupported ledger transport %q", ErrInvalid, c.Ledger.Transport)
	}
	if strings.TrimSpace(c.KeyFile.Path) == "" {
		return fmt.Errorf("%w: key file path is empty", ErrInvalid)
	}
	if _, err := signer.ParseAlgorithm(c.KeyFile.Algorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := keyvault.ParseEntropySource(c.KeyFile.Entropy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", ErrInvalid)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalid)
	}
	return nil
}

// SessionEnabled reports whether the wallet session endpoints can be served.
// The encryption key URI is optional; it defaults to the attester DID's key
// agreement key.
func (c Config) SessionEnabled() bool {
	return c.Session.SecretKey != "" && c.Attester.Seed != ""
}

// WellKnownEnabled reports whether a domain linkage identity is configured.
func (c Config) WellKnownEnabled() bool {
	return c.WellKnown.Did != "" && c.WellKnown.KeyURI != "" && c.WellKnown.Seed != ""
}
