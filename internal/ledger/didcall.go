package ledger

import (
	"context"
	"fmt"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
)

// DidAuthorizedCallOperation is the envelope a DID signs to authorize a call
// paid for by Submitter.
type DidAuthorizedCallOperation struct {
	Did         signer.AccountID
	TxCounter   uint64
	Call        []byte
	BlockNumber uint64
	Submitter   signer.AccountID
}

// Encode returns the SCALE encoding: did, tx_counter, call, block_number, submitter.
func (op DidAuthorizedCallOperation) Encode() []byte {
	e := scaleEncoder{buf: make([]byte, 0, 32+8+len(op.Call)+8+32)}
	e.raw(op.Did[:])
	e.u64(op.TxCounter)
	e.raw(op.Call)
	e.u64(op.BlockNumber)
	e.raw(op.Submitter[:])
	return e.buf
}

// SignedTransaction is a DID-authorized call ready for submission. It is not
// modified after BuildAndSign returns it.
type SignedTransaction struct {
	Operation DidAuthorizedCallOperation
	Encoded   []byte
	Signature signer.TaggedSignature
	Submitter signer.AccountID

	payer signer.Signer
}

// Bytes returns the encoded operation followed by the encoded DID signature.
func (tx SignedTransaction) Bytes() []byte {
	sig, err := signer.EncodeDidSignature(tx.Signature)
	if err != nil {
		return append([]byte(nil), tx.Encoded...)
	}
	out := make([]byte, 0, len(tx.Encoded)+len(sig))
	out = append(out, tx.Encoded...)
	return append(out, sig...)
}

// Call returns the submit_did_call runtime call carrying the transaction.
func (tx SignedTransaction) Call() []byte {
	return append([]byte{palletDid, callDidSubmitDidCall}, tx.Bytes()...)
}

// Payer is the signer that pays the fees of the outer extrinsic.
func (tx SignedTransaction) Payer() signer.Signer { return tx.payer }

// Builder wraps calls into DID-authorized operations.
type Builder struct {
	client Client
}

func NewBuilder(client Client) *Builder {
	return &Builder{client: client}
}

// BuildAndSign wraps call under owner's DID. The replay counter and block
// number are queried from the ledger on every call.
func (b *Builder) BuildAndSign(ctx context.Context, owner, submitter signer.Signer, call []byte) (SignedTransaction, error) {
	return b.build(ctx, owner.AccountID(), owner, submitter, call)
}

// BuildAndSignForDID is BuildAndSign for a DID given as a string. The
// signature is produced by owner, which must control that DID.
func (b *Builder) BuildAndSignForDID(ctx context.Context, didURI string, owner, submitter signer.Signer, call []byte) (SignedTransaction, error) {
	id, err := did.Parse(didURI)
	if err != nil {
		return SignedTransaction{}, err
	}
	return b.build(ctx, id, owner, submitter, call)
}

func (b *Builder) build(ctx context.Context, owner signer.AccountID, key, submitter signer.Signer, call []byte) (SignedTransaction, error) {
	counter, err := b.client.ReplayCounter(ctx, owner)
	if err != nil {
		return SignedTransaction{}, wrapQueryError("query replay counter", err)
	}
	block, err := b.client.CurrentBlock(ctx)
	if err != nil {
		return SignedTransaction{}, wrapQueryError("query current block", err)
	}
	op := DidAuthorizedCallOperation{
		Did:         owner,
		TxCounter:   counter + 1,
		Call:        append([]byte(nil), call...),
		BlockNumber: block,
		Submitter:   submitter.AccountID(),
	}
	encoded := op.Encode()
	sig, err := key.Sign(encoded)
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("sign did call: %w", err)
	}
	if _, err := signer.EncodeDidSignature(sig); err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{
		Operation: op,
		Encoded:   encoded,
		Signature: sig,
		Submitter: op.Submitter,
		payer:     submitter,
	}, nil
}

// wrapQueryError keeps DID errors as they are and classifies everything
// else as a ledger failure.
func wrapQueryError(op string, err error) error {
	if apperr.Category(err) == apperr.CategoryDid {
		return err
	}
	return apperr.Ledger(fmt.Errorf("%s: %w", op, err))
}
