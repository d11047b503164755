// Package did parses and formats the ledger's DID identifiers, key URIs
// and light DIDs, and models the on-chain DID document.
package did

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
)

const (
	Method = "kilt"
	prefix = "did:" + Method + ":"

	lightMarker = "light:"
)

var (
	ErrMalformedDid    = errors.New("malformed did")
	ErrMalformedKeyURI = errors.New("malformed key uri")
)

// KeyID identifies a key inside a full DID document.
type KeyID [32]byte

func (k KeyID) Hex() string { return "0x" + hex.EncodeToString(k[:]) }

// FromAccount renders the full DID of a ledger account.
func FromAccount(id signer.AccountID) string {
	return prefix + signer.EncodeAddress(signer.DefaultAddressPrefix, id)
}

// Parse returns the account id behind a full DID. A bare SS58 address is
// accepted as well. Light DIDs are rejected.
func Parse(raw string) (signer.AccountID, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	addr := raw
	if strings.HasPrefix(raw, "did:") {
		if !strings.HasPrefix(raw, prefix) {
			return signer.AccountID{}, apperr.Format(fmt.Errorf("%w: unsupported method in %q", ErrMalformedDid, raw))
		}
		addr = strings.TrimPrefix(raw, prefix)
	}
	if addr == "" || strings.HasPrefix(addr, lightMarker) {
		return signer.AccountID{}, apperr.Format(fmt.Errorf("%w: %q", ErrMalformedDid, raw))
	}
	_, id, err := signer.DecodeAddress(addr)
	if err != nil {
		return signer.AccountID{}, apperr.Format(fmt.Errorf("%w: %v", ErrMalformedDid, err))
	}
	return id, nil
}

// KeyURI joins a DID and a key id as did#0x<hex>.
func KeyURI(did string, id KeyID) string {
	return did + "#" + id.Hex()
}

// ParseKeyURI splits did#0x<64 hex> into the DID and the key id.
func ParseKeyURI(uri string) (string, KeyID, error) {
	didPart, frag, ok := strings.Cut(strings.TrimSpace(uri), "#")
	if !ok || didPart == "" {
		return "", KeyID{}, apperr.Format(fmt.Errorf("%w: missing fragment", ErrMalformedKeyURI))
	}
	id, err := ParseKeyID(frag)
	if err != nil {
		return "", KeyID{}, err
	}
	return didPart, id, nil
}

// ParseKeyID decodes a 0x-prefixed 32-byte key id.
func ParseKeyID(raw string) (KeyID, error) {
	var id KeyID
	hexPart, ok := strings.CutPrefix(raw, "0x")
	if !ok {
		return id, apperr.Format(fmt.Errorf("%w: key id must be 0x-prefixed", ErrMalformedKeyURI))
	}
	b, err := hex.DecodeString(hexPart)
	if err != nil || len(b) != len(id) {
		return id, apperr.Format(fmt.Errorf("%w: key id must be 32 hex bytes", ErrMalformedKeyURI))
	}
	copy(id[:], b)
	return id, nil
}

// IsLight reports whether raw is a light DID (or a key URI under one).
func IsLight(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), prefix+lightMarker)
}
