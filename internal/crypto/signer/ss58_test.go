package signer

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestEncodeAddressKnownVector(t *testing.T) {
	raw, _ := hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	var id AccountID
	copy(id[:], raw)
	if got := EncodeAddress(42, id); got != "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY" {
		t.Fatalf("unexpected address: %s", got)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	var id AccountID
	for i := range id {
		id[i] = byte(i * 7)
	}
	for _, prefix := range []uint16{0, 38, 42, 63, 64, 255, 1000, 16383} {
		addr := EncodeAddress(prefix, id)
		gotPrefix, gotID, err := DecodeAddress(addr)
		if err != nil {
			t.Fatalf("prefix %d: decode: %v", prefix, err)
		}
		if gotPrefix != prefix {
			t.Fatalf("prefix mismatch: got %d want %d", gotPrefix, prefix)
		}
		if gotID != id {
			t.Fatalf("prefix %d: account id mismatch", prefix)
		}
	}
}

func TestDecodeAddressRejectsCorruption(t *testing.T) {
	var id AccountID
	id[0] = 1
	addr := []byte(EncodeAddress(DefaultAddressPrefix, id))
	last := addr[len(addr)-1]
	if last == '2' {
		addr[len(addr)-1] = '3'
	} else {
		addr[len(addr)-1] = '2'
	}
	if _, _, err := DecodeAddress(string(addr)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, _, err := DecodeAddress("0OIl"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for bad alphabet, got %v", err)
	}
}
