package did

import (
	"context"
	"fmt"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
)

var ErrEndpointNotFound = fmt.Errorf("service endpoint %w", apperr.ErrNotFound)

// DocumentSource is the part of the ledger client the resolver reads from.
type DocumentSource interface {
	DidDocument(ctx context.Context, owner signer.AccountID) (*Document, error)
	ServiceEndpoints(ctx context.Context, owner signer.AccountID) ([]ServiceEndpoint, error)
	Web3Name(ctx context.Context, owner signer.AccountID) (string, error)
}

// Resolver reads DID documents from the ledger. Nothing is cached: every
// call fetches the current on-chain state.
type Resolver struct {
	source DocumentSource
}

func NewResolver(source DocumentSource) *Resolver {
	return &Resolver{source: source}
}

// Document fetches the document of a full DID.
func (r *Resolver) Document(ctx context.Context, didURI string) (*Document, error) {
	owner, err := Parse(didURI)
	if err != nil {
		return nil, apperr.Did(apperr.ErrDidFormat, err.Error())
	}
	doc, err := r.source.DidDocument(ctx, owner)
	if err != nil {
		return nil, ledgerError(err)
	}
	if doc == nil {
		return nil, apperr.Did(apperr.ErrDidNotFound, didURI)
	}
	return doc, nil
}

// EncryptionKey resolves the X25519 key behind a key URI of a light or full DID.
func (r *Resolver) EncryptionKey(ctx context.Context, keyURI string) ([EncryptionKeySize]byte, error) {
	if IsLight(keyURI) {
		return ParseLightDidEncryptionKey(keyURI)
	}
	return r.FullDidEncryptionKey(ctx, keyURI)
}

// FullDidEncryptionKey resolves did#0x<key id> to the X25519 key stored in
// the DID document.
func (r *Resolver) FullDidEncryptionKey(ctx context.Context, keyURI string) ([EncryptionKeySize]byte, error) {
	var out [EncryptionKeySize]byte
	didURI, id, err := ParseKeyURI(keyURI)
	if err != nil {
		return out, apperr.Did(apperr.ErrDidFormat, err.Error())
	}
	doc, err := r.Document(ctx, didURI)
	if err != nil {
		return out, err
	}
	key, ok := doc.Key(id)
	if !ok {
		return out, apperr.Did(apperr.ErrDidMissingKey, id.Hex())
	}
	if !key.IsX25519Encryption() {
		return out, apperr.Did(apperr.ErrDidInvalidKey, fmt.Sprintf("%s is not an x25519 encryption key", id.Hex()))
	}
	copy(out[:], key.Bytes)
	return out, nil
}

// AuthenticationKeyURI returns did#<authentication key id>.
func (r *Resolver) AuthenticationKeyURI(ctx context.Context, didURI string) (string, error) {
	doc, err := r.Document(ctx, didURI)
	if err != nil {
		return "", err
	}
	if _, ok := doc.Key(doc.AuthenticationKey); !ok {
		return "", apperr.Did(apperr.ErrDidMissingKey, "authentication key")
	}
	return KeyURI(didURI, doc.AuthenticationKey), nil
}

// KeyAgreementKeyURI returns the URI of the first key agreement key.
func (r *Resolver) KeyAgreementKeyURI(ctx context.Context, didURI string) (string, error) {
	doc, err := r.Document(ctx, didURI)
	if err != nil {
		return "", err
	}
	if len(doc.KeyAgreementKeys) == 0 {
		return "", apperr.Did(apperr.ErrDidMissingKey, "key agreement key")
	}
	return KeyURI(didURI, doc.KeyAgreementKeys[0]), nil
}

func (r *Resolver) ServiceEndpoints(ctx context.Context, didURI string) ([]ServiceEndpoint, error) {
	owner, err := Parse(didURI)
	if err != nil {
		return nil, apperr.Did(apperr.ErrDidFormat, err.Error())
	}
	endpoints, err := r.source.ServiceEndpoints(ctx, owner)
	if err != nil {
		return nil, ledgerError(err)
	}
	return endpoints, nil
}

// ServiceEndpoint returns the endpoint with the given id or ErrEndpointNotFound.
func (r *Resolver) ServiceEndpoint(ctx context.Context, didURI, id string) (*ServiceEndpoint, error) {
	endpoints, err := r.ServiceEndpoints(ctx, didURI)
	if err != nil {
		return nil, err
	}
	for i := range endpoints {
		if endpoints[i].ID == id {
			return &endpoints[i], nil
		}
	}
	return nil, ErrEndpointNotFound
}

// Web3Name returns the web3 name claimed by the DID, or "".
func (r *Resolver) Web3Name(ctx context.Context, didURI string) (string, error) {
	owner, err := Parse(didURI)
	if err != nil {
		return "", apperr.Did(apperr.ErrDidFormat, err.Error())
	}
	name, err := r.source.Web3Name(ctx, owner)
	if err != nil {
		return "", ledgerError(err)
	}
	return name, nil
}

func ledgerError(err error) error {
	if apperr.Category(err) == apperr.CategoryDid {
		return err
	}
	return apperr.Ledger(err)
}
