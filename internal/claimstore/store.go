// Package claimstore persists the base claim posted for each presentation
// mode as a JSON file next to the key file.
package claimstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/securestore"
	"olibox/agent/pkg/models"
)

type Mode string

const (
	ModeProduction   Mode = "production"
	ModePresentation Mode = "presentation"
)

var (
	ErrUnknownMode   = errors.New("unknown claim mode")
	ErrClaimNotFound = fmt.Errorf("base claim %w", apperr.ErrNotFound)
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeProduction:
		return ModeProduction, nil
	case ModePresentation:
		return ModePresentation, nil
	default:
		return "", apperr.Format(fmt.Errorf("%w: %q", ErrUnknownMode, raw))
	}
}

func Modes() []Mode { return []Mode{ModeProduction, ModePresentation} }

// Store reads and writes one base claim file per mode.
type Store struct {
	mu         sync.Mutex
	dir        string
	passphrase string
}

func New(dir, passphrase string) *Store {
	return &Store{dir: dir, passphrase: passphrase}
}

func (s *Store) path(mode Mode) string {
	return filepath.Join(s.dir, "base_claim_"+string(mode)+".json")
}

func (s *Store) Save(mode Mode, credential models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := securestore.WriteJSON(s.path(mode), s.passphrase, credential); err != nil {
		return apperr.IO(fmt.Errorf("save base claim: %w", err))
	}
	return nil
}

func (s *Store) Load(mode Mode) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := securestore.ReadFile(s.path(mode), s.passphrase)
	if errors.Is(err, os.ErrNotExist) {
		return models.Credential{}, apperr.IO(ErrClaimNotFound)
	}
	if err != nil {
		return models.Credential{}, apperr.IO(fmt.Errorf("read base claim: %w", err))
	}
	var credential models.Credential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return models.Credential{}, apperr.Format(fmt.Errorf("decode base claim: %w", err))
	}
	return credential, nil
}

// RemoveAll deletes the claims of every mode and reports whether any
// existed.
func (s *Store) RemoveAll() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for _, mode := range Modes() {
		err := os.Remove(s.path(mode))
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, apperr.IO(fmt.Errorf("remove base claim: %w", err))
		}
	}
	return removed, nil
}
