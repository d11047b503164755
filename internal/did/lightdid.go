package did

import (
	"errors"
	"fmt"
	"strings"

	"olibox/agent/internal/apperr"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
)

const (
	EncryptionKeySize = 32

	lightDetailsSegment = 4
)

var ErrLightDid = errors.New("malformed light did")

type lightKeyDetails struct {
	PublicKey []byte `cbor:"publicKey"`
	Type      string `cbor:"type"`
}

type lightDetails struct {
	E lightKeyDetails `cbor:"e"`
}

// ParseLightDidEncryptionKey extracts the X25519 encryption key embedded in
// a light DID key URI of the form
// did:kilt:light:<version><auth address>:<details>#<fragment>.
func ParseLightDidEncryptionKey(uri string) ([EncryptionKeySize]byte, error) {
	var key [EncryptionKeySize]byte
	didPart, _, _ := strings.Cut(strings.TrimSpace(uri), "#")
	segments := strings.Split(didPart, ":")
	if len(segments) <= lightDetailsSegment || !IsLight(didPart) {
		return key, lightDidError("missing details segment")
	}
	details := segments[lightDetailsSegment]
	if len(details) < 2 {
		return key, lightDidError("details segment too short")
	}
	raw, err := base58.Decode(details[1:])
	if err != nil {
		return key, lightDidError("bad base58")
	}
	if len(raw) < 2 {
		return key, lightDidError("details payload too short")
	}
	var decoded lightDetails
	if err := cbor.Unmarshal(raw[1:], &decoded); err != nil {
		return key, lightDidError("bad cbor")
	}
	if len(decoded.E.PublicKey) != EncryptionKeySize {
		return key, lightDidError(fmt.Sprintf("encryption key has %d bytes", len(decoded.E.PublicKey)))
	}
	copy(key[:], decoded.E.PublicKey)
	return key, nil
}

func lightDidError(reason string) error {
	return apperr.LightDid(fmt.Errorf("%w: %s", ErrLightDid, reason))
}
