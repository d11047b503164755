package signer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultAddressPrefix is the network prefix of the identity ledger.
const DefaultAddressPrefix uint16 = 38

const ss58ChecksumSize = 2

var ss58Context = []byte("SS58PRE")

var ErrInvalidAddress = errors.New("invalid ss58 address")

// EncodeAddress renders an account id as an SS58 address under prefix.
func EncodeAddress(prefix uint16, id AccountID) string {
	payload := append(prefixBytes(prefix), id[:]...)
	sum := ss58Checksum(payload)
	return base58.Encode(append(payload, sum[:ss58ChecksumSize]...))
}

// DecodeAddress parses an SS58 address and returns its prefix and account id.
func DecodeAddress(address string) (uint16, AccountID, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return 0, AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 1 {
		return 0, AccountID{}, ErrInvalidAddress
	}
	var (
		prefix    uint16
		prefixLen int
	)
	switch {
	case raw[0] < 64:
		prefix, prefixLen = uint16(raw[0]), 1
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, AccountID{}, ErrInvalidAddress
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, AccountID{}, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, raw[0])
	}
	if len(raw) != prefixLen+AccountIDSize+ss58ChecksumSize {
		return 0, AccountID{}, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(raw))
	}
	payload := raw[:prefixLen+AccountIDSize]
	sum := ss58Checksum(payload)
	if !bytes.Equal(sum[:ss58ChecksumSize], raw[prefixLen+AccountIDSize:]) {
		return 0, AccountID{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	var id AccountID
	copy(id[:], raw[prefixLen:])
	return prefix, id, nil
}

func prefixBytes(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0xfc)>>2) | 0x40
	second := byte(prefix>>8) | byte(prefix&0x03)<<6
	return []byte{first, second}
}

func ss58Checksum(payload []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte(nil), ss58Context...), payload...))
}
