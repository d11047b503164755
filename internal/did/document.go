package did

import (
	"fmt"

	"olibox/agent/internal/crypto/signer"

	"golang.org/x/crypto/blake2b"
)

// KeyKind separates verification keys from key agreement keys.
type KeyKind uint8

const (
	VerificationKey KeyKind = iota
	EncryptionKey
)

// KeyType names the concrete curve of a DID public key.
type KeyType uint8

const (
	KeyEd25519 KeyType = iota
	KeySr25519
	KeyEcdsa
	KeyX25519
)

func (t KeyType) String() string {
	switch t {
	case KeyEd25519:
		return "ed25519"
	case KeySr25519:
		return "sr25519"
	case KeyEcdsa:
		return "ecdsa"
	case KeyX25519:
		return "x25519"
	default:
		return fmt.Sprintf("key_type(%d)", uint8(t))
	}
}

// PublicKey is an entry of a DID document's key map.
type PublicKey struct {
	Kind        KeyKind
	Type        KeyType
	Bytes       []byte
	BlockNumber uint64
}

// ID returns the key identifier the ledger assigns: blake2b-256 over the
// SCALE encoding of the key enum (kind variant, type variant, raw bytes).
func (k PublicKey) ID() KeyID {
	typeVariant := byte(k.Type)
	if k.Kind == EncryptionKey {
		typeVariant = 0
	}
	buf := make([]byte, 0, 2+len(k.Bytes))
	buf = append(buf, byte(k.Kind), typeVariant)
	buf = append(buf, k.Bytes...)
	return KeyID(blake2b.Sum256(buf))
}

// IsX25519Encryption reports whether k can be used for box encryption.
func (k PublicKey) IsX25519Encryption() bool {
	return k.Kind == EncryptionKey && k.Type == KeyX25519 && len(k.Bytes) == EncryptionKeySize
}

// VerificationKeyFor describes the verification key a signer contributes to
// a DID document.
func VerificationKeyFor(s signer.Signer) PublicKey {
	var t KeyType
	switch s.Algorithm() {
	case signer.Ed25519:
		t = KeyEd25519
	case signer.Ecdsa:
		t = KeyEcdsa
	default:
		t = KeySr25519
	}
	return PublicKey{Kind: VerificationKey, Type: t, Bytes: s.PublicKey()}
}

// ServiceEndpoint is a DID service entry.
type ServiceEndpoint struct {
	ID    string   `json:"id"`
	Types []string `json:"serviceTypes"`
	URLs  []string `json:"urls"`
}

// Document is the on-chain DID document.
type Document struct {
	AuthenticationKey KeyID
	KeyAgreementKeys  []KeyID
	AttestationKey    *KeyID
	DelegationKey     *KeyID
	PublicKeys        map[KeyID]PublicKey
	LastTxCounter     uint64
}

// Key looks up a key in the document.
func (d *Document) Key(id KeyID) (PublicKey, bool) {
	if d == nil {
		return PublicKey{}, false
	}
	k, ok := d.PublicKeys[id]
	return k, ok
}
