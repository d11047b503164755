// Package securestore seals small JSON documents (the key file, stored
// claims) under a passphrase and writes them to disk atomically.
package securestore

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// filePrefix marks a sealed file; the CBOR body follows it.
const filePrefix = "OLIBOXENC2\n"

const (
	saltSize = 16

	defaultTime     = uint32(2)
	defaultMemoryKB = uint32(64 * 1024)
	defaultThreads  = uint8(1)
	maxMemoryKB     = uint32(1024 * 1024)
)

var (
	ErrAuthFailed = errors.New("securestore authentication failed")
	ErrInvalid    = errors.New("securestore envelope is invalid")
	ErrPlaintext  = errors.New("securestore data is not sealed")
)

// header holds the argon2id parameters and nonce. Its encoded bytes are the
// associated data of the ciphertext, so a rewritten parameter fails to open.
type header struct {
	Time     uint32 `cbor:"1,keyasint"`
	MemoryKB uint32 `cbor:"2,keyasint"`
	Threads  uint8  `cbor:"3,keyasint"`
	Salt     []byte `cbor:"4,keyasint"`
	Nonce    []byte `cbor:"5,keyasint"`
}

type envelope struct {
	Header     []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

// Seal encrypts plaintext under passphrase and returns the prefixed file body.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	h := header{
		Time:     defaultTime,
		MemoryKB: defaultMemoryKB,
		Threads:  defaultThreads,
		Salt:     make([]byte, saltSize),
		Nonce:    make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(h.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(h.Nonce); err != nil {
		return nil, err
	}
	rawHeader, err := cbor.Marshal(h)
	if err != nil {
		return nil, err
	}
	aead, err := deriveAEAD(passphrase, h)
	if err != nil {
		return nil, err
	}
	body, err := cbor.Marshal(envelope{
		Header:     rawHeader,
		Ciphertext: aead.Seal(nil, h.Nonce, plaintext, rawHeader),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), body...), nil
}

// IsSealed reports whether data carries the envelope prefix.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(filePrefix))
}

// Open reverses Seal. Data without the envelope prefix yields ErrPlaintext.
func Open(passphrase string, data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return nil, ErrPlaintext
	}
	var env envelope
	if err := cbor.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var h header
	if err := cbor.Unmarshal(env.Header, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalid, err)
	}
	if len(h.Nonce) != chacha20poly1305.NonceSizeX || len(h.Salt) != saltSize ||
		h.Time == 0 || h.Threads == 0 || h.MemoryKB == 0 || h.MemoryKB > maxMemoryKB {
		return nil, ErrInvalid
	}
	aead, err := deriveAEAD(passphrase, h)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, h.Nonce, env.Ciphertext, env.Header)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveAEAD(passphrase string, h header) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), h.Salt, h.Time, h.MemoryKB, h.Threads, chacha20poly1305.KeySize)
	defer zeroBytes(key)
	return chacha20poly1305.NewX(key)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
