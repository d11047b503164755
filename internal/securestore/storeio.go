package securestore

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ReadFile returns the plaintext content of path. Sealed files are opened
// with passphrase; unsealed files are returned as they are.
func ReadFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !IsSealed(raw) {
		return raw, nil
	}
	return Open(passphrase, raw)
}

// WriteJSON marshals v, seals it when passphrase is set and replaces path atomically.
func WriteJSON(path, passphrase string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if passphrase != "" {
		sealed, err := Seal(passphrase, payload)
		zeroBytes(payload)
		if err != nil {
			return err
		}
		payload = sealed
	}
	return WriteFileAtomic(path, payload, 0o600)
}

// WriteFileAtomic writes b to a temp file in the target directory, syncs it
// and renames it over path, so readers see either the old or the new file.
func WriteFileAtomic(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
