// Package wallet builds the wallet side of the session exchange for tests.
package wallet

import (
	"crypto/rand"
	"testing"

	"olibox/agent/internal/crypto"
	"olibox/agent/internal/did"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
)

// KeyPair returns a fresh random box key pair.
func KeyPair(t testing.TB) *crypto.KeyPair {
	t.Helper()
	secret := make([]byte, crypto.KeySize)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("box secret: %v", err)
	}
	kp, err := crypto.KeyPairFromSecret(secret)
	if err != nil {
		t.Fatalf("box key pair: %v", err)
	}
	return kp
}

type keyDetails struct {
	PublicKey []byte `cbor:"publicKey"`
	Type      string `cbor:"type"`
}

// LightDid renders a light DID that carries key as its X25519 encryption
// key under authAddress, the way wallet extensions encode it.
func LightDid(t testing.TB, authAddress string, key [did.EncryptionKeySize]byte) string {
	t.Helper()
	payload, err := cbor.Marshal(struct {
		E keyDetails `cbor:"e"`
	}{E: keyDetails{PublicKey: key[:], Type: "x25519"}})
	if err != nil {
		t.Fatalf("light did details: %v", err)
	}
	return "did:kilt:light:00" + authAddress + ":z" + base58.Encode(append([]byte{0x00}, payload...))
}
