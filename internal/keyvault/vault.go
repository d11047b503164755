// Package keyvault owns the device's two ledger identities: the payment
// account that pays fees and the DID authentication key. Both are derived
// from independent BIP-39 mnemonics persisted in a local key file.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"

	"github.com/tyler-smith/go-bip39"
)

const (
	componentName = "keyvault"
	entropyBytes  = 32
)

type Role int

const (
	RolePayment Role = iota + 1
	RoleDidAuth
)

func (r Role) String() string {
	switch r {
	case RolePayment:
		return "payment"
	case RoleDidAuth:
		return "did_auth"
	default:
		return "unknown"
	}
}

type Options struct {
	Path       string
	Passphrase string
	Algorithm  signer.Algorithm
	Entropy    EntropySource
	Logger     *slog.Logger
}

// Manager is an immutable pair of signers derived from one key file.
type Manager struct {
	payment signer.Signer
	didAuth signer.Signer
	file    KeyFile
}

func newManager(alg signer.Algorithm, kf KeyFile) (*Manager, error) {
	payment, err := deriveSigner(alg, RolePayment, kf.PaymentAccountSeed)
	if err != nil {
		return nil, err
	}
	didAuth, err := deriveSigner(alg, RoleDidAuth, kf.DidAuthSeed)
	if err != nil {
		return nil, err
	}
	kf.Did = didAuth.Address()
	return &Manager{payment: payment, didAuth: didAuth, file: kf}, nil
}

func deriveSigner(alg signer.Algorithm, role Role, mnemonic string) (signer.Signer, error) {
	s, err := signer.FromMnemonic(alg, mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("derive %s key: %w", role, err)
	}
	return s, nil
}

func (m *Manager) PaymentSigner() signer.Signer { return m.payment }

func (m *Manager) DidAuthSigner() signer.Signer { return m.didAuth }

func (m *Manager) PaymentAddress() string { return m.payment.Address() }

// DID returns the full DID of the did-auth key.
func (m *Manager) DID() string { return did.FromAccount(m.didAuth.AccountID()) }

// Vault is the process-wide holder of the active Manager. Readers take the
// shared lock; ResetDidAuthKey takes the exclusive lock and swaps the
// manager only after the key file on disk has been replaced.
type Vault struct {
	mu         sync.RWMutex
	manager    *Manager
	path       string
	passphrase string
	alg        signer.Algorithm
	entropy    EntropySource
	logger     *slog.Logger
}

// Init loads the key file at opts.Path or creates it on first run.
func Init(ctx context.Context, opts Options) (*Vault, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, apperr.IO(errors.New("key file path is empty"))
	}
	v := &Vault{
		path:       path,
		passphrase: opts.Passphrase,
		alg:        opts.Algorithm,
		entropy:    opts.Entropy,
		logger:     opts.Logger,
	}
	if v.alg == 0 {
		v.alg = signer.Sr25519
	}
	if v.entropy == nil {
		v.entropy = CSPRNG{}
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}

	exists, err := keyFileExists(path)
	if err != nil {
		return nil, err
	}
	var kf KeyFile
	if exists {
		if kf, err = readKeyFile(path, v.passphrase); err != nil {
			return nil, err
		}
	} else {
		if kf, err = v.generateKeyFile(ctx); err != nil {
			return nil, err
		}
	}
	manager, err := newManager(v.alg, kf)
	if err != nil {
		return nil, err
	}
	if !exists || kf.Did != manager.file.Did {
		if err := writeKeyFile(path, v.passphrase, manager.file); err != nil {
			return nil, err
		}
	}
	v.manager = manager
	v.logger.Info("key vault ready",
		"component", componentName,
		"operation", "init",
		"created", !exists,
		"did", manager.DID(),
		"payment_address", manager.PaymentAddress(),
	)
	return v, nil
}

func (v *Vault) generateKeyFile(ctx context.Context) (KeyFile, error) {
	payment, err := v.newMnemonic(ctx, RolePayment)
	if err != nil {
		return KeyFile{}, err
	}
	didAuth, err := v.newMnemonic(ctx, RoleDidAuth)
	if err != nil {
		return KeyFile{}, err
	}
	kf := KeyFile{PaymentAccountSeed: payment, DidAuthSeed: didAuth}
	if err := kf.validate(); err != nil {
		return KeyFile{}, err
	}
	return kf, nil
}

func (v *Vault) newMnemonic(ctx context.Context, role Role) (string, error) {
	entropy, err := v.entropy.Read(ctx, entropyBytes)
	if err != nil {
		return "", fmt.Errorf("%s mnemonic: %w", role, err)
	}
	defer zeroBytes(entropy)
	if len(entropy) != entropyBytes {
		return "", fmt.Errorf("%s mnemonic: %w: got %d bytes", role, ErrEntropy, len(entropy))
	}
	return bip39.NewMnemonic(entropy)
}

// ResetDidAuthKey replaces the did-auth mnemonic and keeps the payment one.
func (v *Vault) ResetDidAuthKey(ctx context.Context) (*Manager, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	exists, err := keyFileExists(v.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.IO(ErrKeyFileNotFound)
	}
	current := v.manager.file
	mnemonic, err := v.newMnemonic(ctx, RoleDidAuth)
	if err != nil {
		return nil, err
	}
	next := KeyFile{PaymentAccountSeed: current.PaymentAccountSeed, DidAuthSeed: mnemonic}
	if err := next.validate(); err != nil {
		return nil, err
	}
	manager, err := newManager(v.alg, next)
	if err != nil {
		return nil, err
	}
	if err := writeKeyFile(v.path, v.passphrase, manager.file); err != nil {
		return nil, err
	}
	previous := v.manager.DID()
	v.manager = manager
	v.logger.Info("did auth key reset",
		"component", componentName,
		"operation", "reset_did_auth",
		"previous_did", previous,
		"did", manager.DID(),
	)
	return manager, nil
}

func (v *Vault) Manager() *Manager {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.manager
}

func (v *Vault) PaymentSigner() signer.Signer { return v.Manager().PaymentSigner() }

func (v *Vault) DidAuthSigner() signer.Signer { return v.Manager().DidAuthSigner() }

func (v *Vault) DID() string { return v.Manager().DID() }

func (v *Vault) Path() string { return v.path }
