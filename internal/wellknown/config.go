// Package wellknown issues the self-signed domain linkage credential served
// at /.well-known/did-configuration.json.
package wellknown

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"olibox/agent/internal/crypto/signer"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	ConfigurationContext = "https://identity.foundation/.well-known/did-configuration/v1"
	CredentialsContext   = "https://www.w3.org/2018/credentials/v1"
	DomainLinkageCType   = "kilt:ctype:0x9d271c790775ee831352291f01c5d04c7979713a5896dcf5e81708184cc5c643"

	ProofType    = "KILTSelfSigned2020"
	ProofPurpose = "assertionMethod"

	validity   = 365 * 24 * time.Hour
	dateLayout = "2006-01-02T15:04:05.000Z"
)

var ErrInvalidOrigin = errors.New("origin must be an absolute url")

type CredentialSubject struct {
	ID       string `json:"id"`
	Origin   string `json:"origin"`
	RootHash string `json:"rootHash"`
}

type Proof struct {
	Type               string `json:"type"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	Signature          string `json:"signature"`
}

type LinkedDid struct {
	Context           []string          `json:"@context"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate"`
	Type              []string          `json:"type"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             Proof             `json:"proof"`
}

type Config struct {
	Context    string      `json:"@context"`
	LinkedDids []LinkedDid `json:"linked_dids"`
}

// Issue builds a fresh domain linkage credential for didURI and origin.
// Every statement hash is salted with a new random nonce and the nonces are
// discarded, so each call yields a different root hash and no statement can
// be disclosed selectively later.
func Issue(didURI, origin, keyURI string, s signer.Signer, now time.Time) (Config, error) {
	parts, err := statements(didURI, origin)
	if err != nil {
		return Config{}, err
	}
	rootInput := make([]byte, 0, len(parts)*blake2b.Size256)
	for _, part := range parts {
		hash := blake2b.Sum256(part)
		salted := blake2b.Sum256(append([]byte(uuid.NewString()), hexText(hash[:])...))
		rootInput = append(rootInput, salted[:]...)
	}
	root := blake2b.Sum256(rootInput)
	sig, err := s.Sign(root[:])
	if err != nil {
		return Config{}, fmt.Errorf("sign root hash: %w", err)
	}

	now = now.UTC()
	return Config{
		Context: ConfigurationContext,
		LinkedDids: []LinkedDid{{
			Context:        []string{CredentialsContext, ConfigurationContext},
			Issuer:         didURI,
			IssuanceDate:   now.Format(dateLayout),
			ExpirationDate: now.Add(validity).Format(dateLayout),
			Type:           []string{"VerifiableCredential", "DomainLinkageCredential", "KiltCredential2020"},
			CredentialSubject: CredentialSubject{
				ID:       didURI,
				Origin:   origin,
				RootHash: hexText(root[:]),
			},
			Proof: Proof{
				Type:               ProofType,
				ProofPurpose:       ProofPurpose,
				VerificationMethod: keyURI,
				Signature:          signer.Hex(sig),
			},
		}},
	}, nil
}

// statements returns the normalized claim statements in their fixed order.
func statements(didURI, origin string) ([][]byte, error) {
	items := []map[string]string{
		{"@id": didURI},
		{DomainLinkageCType + "#id": didURI},
		{DomainLinkageCType + "#origin": origin},
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
		out = append(out, bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	}
	return out, nil
}

func hexText(b []byte) string { return "0x" + hex.EncodeToString(b) }

// Holder keeps the identity the credential is issued for. The origin can be
// changed at runtime; the credential is regenerated on every request.
type Holder struct {
	mu     sync.RWMutex
	did    string
	keyURI string
	origin string
	signer signer.Signer
}

func NewHolder(didURI, keyURI, origin string, s signer.Signer) *Holder {
	return &Holder{did: didURI, keyURI: keyURI, origin: origin, signer: s}
}

func (h *Holder) SetOrigin(raw string) error {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidOrigin
	}
	h.mu.Lock()
	h.origin = raw
	h.mu.Unlock()
	return nil
}

func (h *Holder) Origin() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.origin
}

func (h *Holder) Current(now time.Time) (Config, error) {
	h.mu.RLock()
	didURI, keyURI, origin, s := h.did, h.keyURI, h.origin, h.signer
	h.mu.RUnlock()
	return Issue(didURI, origin, keyURI, s, now)
}
