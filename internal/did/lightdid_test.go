package did_test

import (
	"errors"
	"strings"
	"testing"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/testutil/wallet"
)

func lightAddress() string {
	var id signer.AccountID
	for i := range id {
		id[i] = 9 + byte(i)
	}
	return signer.EncodeAddress(signer.DefaultAddressPrefix, id)
}

func TestParseLightDidEncryptionKeyExtractsKey(t *testing.T) {
	var key [did.EncryptionKeySize]byte
	for i := range key {
		key[i] = byte(200 - i)
	}
	light := wallet.LightDid(t, lightAddress(), key)
	if !did.IsLight(light) {
		t.Fatalf("expected light did, got %s", light)
	}
	got, err := did.ParseLightDidEncryptionKey(light + "#encryption")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != key {
		t.Fatal("extracted key does not match the embedded key")
	}
}

func TestParseLightDidEncryptionKeyRejectsMalformed(t *testing.T) {
	var key [did.EncryptionKeySize]byte
	light := wallet.LightDid(t, "4pZ", key)
	truncated := light[:len(light)-10]
	cases := []string{
		"",
		"did:kilt:light:00abc#encryption",
		"did:kilt:light:00abc:z#encryption",
		"did:kilt:light:00abc:z0OIl#encryption",
		"did:kilt:light:00abc:z2#encryption",
		truncated + "#encryption",
		strings.Replace(light, "did:kilt:light:", "did:kilt:", 1),
	}
	for _, raw := range cases {
		_, err := did.ParseLightDidEncryptionKey(raw)
		if !errors.Is(err, did.ErrLightDid) {
			t.Fatalf("%q: expected ErrLightDid, got %v", raw, err)
		}
		if apperr.Category(err) != apperr.CategoryLightDid {
			t.Fatalf("%q: expected light_did category", raw)
		}
	}
}
