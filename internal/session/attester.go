package session

import (
	"context"
	"errors"
	"fmt"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/ledger"
)

// ProvisionAttester resolves the full DID owned by attester and creates it,
// paid by payer and carrying keys as its key agreement key, when the ledger
// does not know it yet. It returns the attester identity and the key URI
// wallets encrypt to.
func ProvisionAttester(ctx context.Context, resolver *did.Resolver, submitter *ledger.Submitter, attester, payer signer.Signer, keys *crypto.KeyPair) (Attester, string, error) {
	out := Attester{Did: did.FromAccount(attester.AccountID()), Signer: attester}
	keyURI, err := resolver.KeyAgreementKeyURI(ctx, out.Did)
	if errors.Is(err, apperr.ErrDidNotFound) {
		call, serr := ledger.SignCreateDid(attester, ledger.CreateDidDetails{
			Did:              attester.AccountID(),
			Submitter:        payer.AccountID(),
			KeyAgreementKeys: [][did.EncryptionKeySize]byte{keys.Public},
		})
		if serr != nil {
			return Attester{}, "", serr
		}
		if _, serr := submitter.SubmitCall(ctx, payer, call, ledger.WaitFinalized); serr != nil {
			return Attester{}, "", fmt.Errorf("create attester did: %w", serr)
		}
		keyURI, err = resolver.KeyAgreementKeyURI(ctx, out.Did)
	}
	if err != nil {
		return Attester{}, "", err
	}
	return out, keyURI, nil
}
