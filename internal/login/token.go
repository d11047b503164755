// Package login signs the self-issued compact token the identity-linking
// service accepts and talks to that service and to the attester.
package login

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"olibox/agent/internal/crypto/signer"
)

const tokenLifetime = time.Hour

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
	Crv string `json:"crv"`
	Kty string `json:"kty"`
}

type Body struct {
	Iss   string `json:"iss"`
	Sub   string `json:"sub"`
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
	Nbf   int64  `json:"nbf"`
}

// BuildToken returns header.body.signature, each part standard base64. The
// signature covers the lowercase hex text of SHA-512(header "." body) and
// is itself carried as 0x-prefixed hex before encoding.
func BuildToken(didURI, keyURI, nonce string, s signer.Signer, now time.Time) (string, error) {
	header, err := json.Marshal(Header{Alg: "EdDSA", Typ: "JWT", Kid: keyURI, Crv: "ed25519", Kty: "ed25519"})
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(Body{
		Iss:   didURI,
		Sub:   didURI,
		Nonce: nonce,
		Exp:   now.Add(tokenLifetime).Unix(),
		Nbf:   now.Unix(),
	})
	if err != nil {
		return "", err
	}
	encHeader := base64.StdEncoding.EncodeToString(header)
	encBody := base64.StdEncoding.EncodeToString(body)

	sig, err := s.Sign(SigningInput(encHeader, encBody))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	encSig := base64.StdEncoding.EncodeToString([]byte(signer.Hex(sig)))
	return encHeader + "." + encBody + "." + encSig, nil
}

// SigningInput is the byte string a token signature covers.
func SigningInput(encHeader, encBody string) []byte {
	digest := sha512.Sum512([]byte(encHeader + "." + encBody))
	return []byte(hex.EncodeToString(digest[:]))
}

// CheckHealth reports whether token is set and its exp lies after now.
func CheckHealth(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return false
	}
	var claims struct {
		Exp *int64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil || claims.Exp == nil {
		return false
	}
	return *claims.Exp > now.Unix()
}

// decodeSegment accepts standard and URL-safe base64, padded or not.
func decodeSegment(seg string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(seg); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("undecodable token segment")
}
