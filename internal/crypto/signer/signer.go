// Package signer implements the closed set of signing algorithms a device
// identity can hold and the encodings the ledger expects for their output.
package signer

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm is one of the three signature schemes the ledger accepts.
type Algorithm uint8

const (
	Sr25519 Algorithm = iota + 1
	Ed25519
	Ecdsa
)

const (
	AccountIDSize = 32

	sr25519SignatureSize = 64
	ed25519SignatureSize = 64
	ecdsaSignatureSize   = 65

	miniSecretSize  = 32
	pbkdf2Rounds    = 2048
	mnemonicSaltTag = "mnemonic"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown signature algorithm")
	ErrSignatureSize    = errors.New("signature has unexpected size")
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidSeed      = errors.New("invalid seed")
)

func (a Algorithm) String() string {
	switch a {
	case Sr25519:
		return "sr25519"
	case Ed25519:
		return "ed25519"
	case Ecdsa:
		return "ecdsa"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// SignatureSize reports the fixed signature length of the algorithm.
func (a Algorithm) SignatureSize() (int, error) {
	switch a {
	case Sr25519:
		return sr25519SignatureSize, nil
	case Ed25519:
		return ed25519SignatureSize, nil
	case Ecdsa:
		return ecdsaSignatureSize, nil
	default:
		return 0, ErrUnknownAlgorithm
	}
}

// ParseAlgorithm accepts the lowercase algorithm names used in config files.
func ParseAlgorithm(raw string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sr25519", "":
		return Sr25519, nil
	case "ed25519":
		return Ed25519, nil
	case "ecdsa", "secp256k1":
		return Ecdsa, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, raw)
	}
}

// AccountID is the 32-byte ledger account identifier of a signer.
type AccountID [AccountIDSize]byte

func (a AccountID) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// TaggedSignature is a signature together with the algorithm that produced it.
type TaggedSignature struct {
	Algorithm Algorithm
	Bytes     []byte
}

// Signer is the opaque signing capability handed out by the key vault.
// Implementations never expose secret key material.
type Signer interface {
	Algorithm() Algorithm
	AccountID() AccountID
	PublicKey() []byte
	Address() string
	Sign(msg []byte) (TaggedSignature, error)
	Verify(msg []byte, sig TaggedSignature) bool
}

// FromMnemonic derives a signer of the given algorithm from a BIP-39 phrase
// the same way substrate tooling does: the PBKDF2 mini-secret is computed
// over the mnemonic entropy, not over the phrase text.
func FromMnemonic(alg Algorithm, mnemonic, password string) (Signer, error) {
	seed, err := MiniSecretFromMnemonic(mnemonic, password)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)
	return FromSeed(alg, seed)
}

// FromSeed builds a signer from a 32-byte secret seed.
func FromSeed(alg Algorithm, seed []byte) (Signer, error) {
	if len(seed) != miniSecretSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSeed, miniSecretSize, len(seed))
	}
	switch alg {
	case Sr25519:
		s, err := newSr25519Signer(seed)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Ed25519:
		return newEd25519Signer(seed), nil
	case Ecdsa:
		s, err := newEcdsaSigner(seed)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// MiniSecretFromMnemonic returns the 32-byte substrate mini-secret of a phrase.
func MiniSecretFromMnemonic(mnemonic, password string) ([]byte, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer zeroBytes(entropy)
	full := pbkdf2.Key(entropy, []byte(mnemonicSaltTag+password), pbkdf2Rounds, 64, sha512.New)
	defer zeroBytes(full)
	return append([]byte(nil), full[:miniSecretSize]...), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// FromSecret accepts either a BIP-39 phrase or a 0x-prefixed 32-byte hex
// seed, the two secret forms operators put in configuration.
func FromSecret(alg Algorithm, secret string) (Signer, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, "0x") {
		return FromMnemonic(alg, secret, "")
	}
	seed, err := hex.DecodeString(secret[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	defer zeroBytes(seed)
	return FromSeed(alg, seed)
}
