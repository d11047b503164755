// Package crypto wraps the X25519/XSalsa20-Poly1305 box construction used
// for challenge and credential message exchange.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"olibox/agent/pkg/models"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize   = 32
	NonceSize = 24

	maxSeenNonces        = 1024
	replaySweepEvery     = 256
	defaultReplayIdleTTL = 10 * time.Minute
)

var (
	ErrInvalidKey   = errors.New("invalid box key")
	ErrInvalidNonce = errors.New("invalid box nonce")
	ErrDecrypt      = errors.New("unable to decrypt")
	ErrReplay       = errors.New("nonce already used")
)

// KeyPair is the agent's long-lived encryption key.
type KeyPair struct {
	Public [KeySize]byte
	secret [KeySize]byte
}

// KeyPairFromSecret derives the public key of a raw X25519 secret.
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(secret))
	}
	pub, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	kp := &KeyPair{}
	copy(kp.secret[:], secret)
	copy(kp.Public[:], pub)
	return kp, nil
}

// KeyPairFromHex accepts the secret as hex text with an optional 0x prefix.
func KeyPairFromHex(raw string) (*KeyPair, error) {
	secret, err := models.DecodeHex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer clear(secret)
	return KeyPairFromSecret(secret)
}

// Seal encrypts msg for peer under a fresh random nonce.
func (kp *KeyPair) Seal(msg []byte, peer [KeySize]byte) (ciphertext []byte, nonce [NonceSize]byte, err error) {
	if _, err = rand.Read(nonce[:]); err != nil {
		return nil, nonce, err
	}
	ciphertext = box.Seal(nil, msg, &nonce, &peer, &kp.secret)
	return ciphertext, nonce, nil
}

// Open authenticates and decrypts a box sealed by peer.
func (kp *KeyPair) Open(ciphertext, nonce []byte, peer [KeySize]byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidNonce, NonceSize, len(nonce))
	}
	var n [NonceSize]byte
	copy(n[:], nonce)
	plain, ok := box.Open(nil, ciphertext, &n, &peer, &kp.secret)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// ReplayGuard remembers the most recent nonces seen per sender key. A sender
// silent for longer than the idle TTL is forgotten.
type ReplayGuard struct {
	mu      sync.Mutex
	idleTTL time.Duration
	now     func() time.Time
	senders map[string]*seenNonces
	checks  uint64
}

type seenNonces struct {
	nonces   []string
	lastSeen time.Time
}

func NewReplayGuard(idleTTL time.Duration) *ReplayGuard {
	if idleTTL <= 0 {
		idleTTL = defaultReplayIdleTTL
	}
	return &ReplayGuard{idleTTL: idleTTL, now: time.Now, senders: make(map[string]*seenNonces)}
}

// Check records nonce for sender and fails if it was already recorded.
func (g *ReplayGuard) Check(sender string, nonce []byte) error {
	key := string(nonce)
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.checks++
	if g.checks%replaySweepEvery == 0 {
		g.sweepLocked(now)
	}
	seen, ok := g.senders[sender]
	if !ok {
		seen = &seenNonces{}
		g.senders[sender] = seen
	}
	seen.lastSeen = now
	for _, v := range seen.nonces {
		if v == key {
			return ErrReplay
		}
	}
	seen.nonces = append(seen.nonces, key)
	if len(seen.nonces) > maxSeenNonces {
		seen.nonces = append([]string(nil), seen.nonces[len(seen.nonces)-maxSeenNonces:]...)
	}
	return nil
}

// Sweep forgets senders idle since before now minus the idle TTL.
func (g *ReplayGuard) Sweep(now time.Time) {
	g.mu.Lock()
	g.sweepLocked(now)
	g.mu.Unlock()
}

// Len reports the number of tracked senders.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.senders)
}

func (g *ReplayGuard) sweepLocked(now time.Time) {
	for sender, seen := range g.senders {
		if now.Sub(seen.lastSeen) > g.idleTTL {
			delete(g.senders, sender)
		}
	}
}
