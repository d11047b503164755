package keyvault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/securestore"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrKeyFileNotFound = fmt.Errorf("key file %w", apperr.ErrNotFound)
	ErrKeyFileInvalid  = errors.New("key file is invalid")
	ErrSharedMnemonic  = errors.New("payment and did auth keys must not share a mnemonic")
)

// KeyFile is the persisted form of the vault. Only mnemonics are stored.
type KeyFile struct {
	PaymentAccountSeed string `json:"paymentAccountSeed"`
	DidAuthSeed        string `json:"didAuthSeed"`
	Did                string `json:"did,omitempty"`
}

func (k KeyFile) validate() error {
	payment := strings.TrimSpace(k.PaymentAccountSeed)
	didAuth := strings.TrimSpace(k.DidAuthSeed)
	if !bip39.IsMnemonicValid(payment) {
		return fmt.Errorf("%w: payment mnemonic", ErrKeyFileInvalid)
	}
	if !bip39.IsMnemonicValid(didAuth) {
		return fmt.Errorf("%w: did auth mnemonic", ErrKeyFileInvalid)
	}
	if payment == didAuth {
		return ErrSharedMnemonic
	}
	return nil
}

func readKeyFile(path, passphrase string) (KeyFile, error) {
	raw, err := securestore.ReadFile(path, passphrase)
	if errors.Is(err, os.ErrNotExist) {
		return KeyFile{}, apperr.IO(ErrKeyFileNotFound)
	}
	if err != nil {
		return KeyFile{}, apperr.IO(fmt.Errorf("read key file: %w", err))
	}
	defer zeroBytes(raw)
	var kf KeyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return KeyFile{}, apperr.Format(fmt.Errorf("%w: %v", ErrKeyFileInvalid, err))
	}
	if err := kf.validate(); err != nil {
		return KeyFile{}, apperr.Format(err)
	}
	return kf, nil
}

func writeKeyFile(path, passphrase string, kf KeyFile) error {
	if err := securestore.WriteJSON(path, passphrase, kf); err != nil {
		return apperr.IO(fmt.Errorf("write key file: %w", err))
	}
	return nil
}

func keyFileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, apperr.IO(err)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
