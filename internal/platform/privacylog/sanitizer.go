// Package privacylog keeps key material and correlatable identifiers out of
// the agent's structured logs.
package privacylog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	redactedValue   = "[REDACTED]"
	fingerprintTail = "_fp"
	mnemonicMinLen  = 12
)

type action uint8

const (
	keep action = iota
	redact
	fingerprint
)

var (
	// fingerprintKey makes fingerprints unlinkable across process restarts.
	fingerprintKey = randomKey()

	identifierKeys = map[string]struct{}{
		"session_id": {},
		"message_id": {},
		"did":        {},
		"key_uri":    {},
		"claim_hash": {},
		"client_ip":  {},
		"address":    {},
	}
	secretKeyParts = []string{"token", "secret", "seed", "mnemonic", "password", "passphrase", "authorization", "challenge"}
)

// SanitizingHandler rewrites every attribute before it reaches next.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = SanitizeAttr(attr)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts secrets, replaces identifiers with a keyed
// fingerprint under "<key>_fp" and recurses into groups.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	value := attr.Value.Resolve()
	switch classify(strings.ToLower(key)) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		if !strings.HasSuffix(key, fingerprintTail) {
			key += fingerprintTail
		}
		return slog.String(key, FingerprintID(value.String()))
	}
	switch value.Kind() {
	case slog.KindGroup:
		group := value.Group()
		clean := make([]slog.Attr, len(group))
		for i, member := range group {
			clean[i] = SanitizeAttr(member)
		}
		return slog.Attr{Key: key, Value: slog.GroupValue(clean...)}
	case slog.KindString:
		if looksLikeMnemonic(value.String()) {
			return slog.String(key, redactedValue)
		}
	}
	return slog.Attr{Key: key, Value: value}
}

// FingerprintID returns a stable per-process token for an identifier, or ""
// for a blank one.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	mac, _ := blake2b.New256(fingerprintKey)
	mac.Write([]byte(trimmed))
	return "fp_" + hex.EncodeToString(mac.Sum(nil)[:8])
}

func classify(key string) action {
	for _, part := range secretKeyParts {
		if strings.Contains(key, part) {
			return redact
		}
	}
	if _, ok := identifierKeys[key]; ok {
		return fingerprint
	}
	if strings.HasSuffix(key, "_did") || strings.HasSuffix(key, "_key_uri") || strings.HasSuffix(key, "_address") {
		return fingerprint
	}
	return keep
}

// looksLikeMnemonic catches a phrase logged under an innocent key.
func looksLikeMnemonic(v string) bool {
	words := strings.Fields(v)
	if len(words) < mnemonicMinLen || len(words)%3 != 0 {
		return false
	}
	for _, w := range words {
		for _, r := range w {
			if r < 'a' || r > 'z' {
				return false
			}
		}
	}
	return true
}

func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("privacylog: no randomness for fingerprint key: " + err.Error())
	}
	return key
}
