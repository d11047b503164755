// Package memledger is an in-memory identity ledger. It validates and applies
// the calls the ledger package builds, and replays a configurable status
// script for every submission. It backs tests and the "mock" transport.
package memledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
	"olibox/agent/internal/ledger"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrBadSignature   = errors.New("did signature does not verify")
	ErrBadCounter     = errors.New("unexpected tx counter")
	ErrWrongSubmitter = errors.New("submitter does not match payer")
	ErrDidExists      = errors.New("did already exists")
	ErrEndpoint       = errors.New("service endpoint rejected")
)

// Attestation is a recorded claim hash.
type Attestation struct {
	CtypeHash [32]byte
	Attester  signer.AccountID
}

// Submission records one extrinsic and how it was handled.
type Submission struct {
	Hash  ledger.TxHash
	Payer signer.AccountID
	Call  []byte
	Err   error
}

type didEntry struct {
	doc      did.Document
	services []did.ServiceEndpoint
	web3Name string
}

type Ledger struct {
	mu           sync.Mutex
	block        uint64
	dids         map[signer.AccountID]*didEntry
	attestations map[[32]byte]Attestation
	script       []ledger.TxStatusKind
	submissions  []Submission
	failNext     error
}

func New() *Ledger {
	return &Ledger{
		block:        1,
		dids:         make(map[signer.AccountID]*didEntry),
		attestations: make(map[[32]byte]Attestation),
		script: []ledger.TxStatusKind{
			ledger.StatusReady,
			ledger.StatusBroadcast,
			ledger.StatusInBlock,
			ledger.StatusFinalized,
		},
	}
}

// SetScript replaces the status sequence replayed for later submissions.
// Invalid calls always end in a single Invalid status.
func (l *Ledger) SetScript(kinds ...ledger.TxStatusKind) {
	l.mu.Lock()
	l.script = append([]ledger.TxStatusKind(nil), kinds...)
	l.mu.Unlock()
}

// FailNextSubmit makes the next SubmitAndWatch return err.
func (l *Ledger) FailNextSubmit(err error) {
	l.mu.Lock()
	l.failNext = err
	l.mu.Unlock()
}

// AdvanceBlocks moves the chain head forward.
func (l *Ledger) AdvanceBlocks(n uint64) {
	l.mu.Lock()
	l.block += n
	l.mu.Unlock()
}

// SetWeb3Name assigns a web3 name to an existing DID.
func (l *Ledger) SetWeb3Name(owner signer.AccountID, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	entry.web3Name = name
	return nil
}

// AddKeyAgreementKey stores an X25519 key under an existing DID and returns its id.
func (l *Ledger) AddKeyAgreementKey(owner signer.AccountID, key [did.EncryptionKeySize]byte) (did.KeyID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return did.KeyID{}, apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	return entry.addKeyAgreement(key, l.block), nil
}

func (l *Ledger) Attestation(claimHash [32]byte) (Attestation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attestations[claimHash]
	return a, ok
}

func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

func (l *Ledger) ReplayCounter(ctx context.Context, owner signer.AccountID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return 0, apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	return entry.doc.LastTxCounter, nil
}

func (l *Ledger) CurrentBlock(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

func (l *Ledger) DidDocument(ctx context.Context, owner signer.AccountID) (*did.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return nil, apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	return entry.snapshot(), nil
}

func (l *Ledger) ServiceEndpoints(ctx context.Context, owner signer.AccountID) ([]did.ServiceEndpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return nil, apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	out := make([]did.ServiceEndpoint, 0, len(entry.services))
	for _, ep := range entry.services {
		out = append(out, cloneEndpoint(ep))
	}
	return out, nil
}

func (l *Ledger) ServiceEndpoint(ctx context.Context, owner signer.AccountID, id string) (*did.ServiceEndpoint, error) {
	endpoints, err := l.ServiceEndpoints(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, ep := range endpoints {
		if ep.ID == id {
			return &ep, nil
		}
	}
	return nil, nil
}

func (l *Ledger) Web3Name(ctx context.Context, owner signer.AccountID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.dids[owner]
	if !ok {
		return "", apperr.Did(apperr.ErrDidNotFound, did.FromAccount(owner))
	}
	return entry.web3Name, nil
}

// SubmitAndWatch applies the call and returns a closed, pre-filled status
// channel following the configured script. State changes are kept only when
// the script includes the call in a block and does not end in a failure.
func (l *Ledger) SubmitAndWatch(ctx context.Context, ext ledger.Extrinsic) (ledger.TxHash, <-chan ledger.TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TxHash{}, nil, err
	}
	if ext.Payer == nil {
		return ledger.TxHash{}, nil, ledger.ErrNoPayer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failNext; err != nil {
		l.failNext = nil
		return ledger.TxHash{}, nil, err
	}

	payer := ext.Payer.AccountID()
	hash := l.txHash(payer, ext.Call)
	restore := l.checkpoint()
	applyErr := l.apply(payer, ext.Call)
	if applyErr != nil || !includes(l.script) {
		restore()
	}
	l.submissions = append(l.submissions, Submission{
		Hash:  hash,
		Payer: payer,
		Call:  append([]byte(nil), ext.Call...),
		Err:   applyErr,
	})

	if applyErr != nil {
		out := make(chan ledger.TxStatus, 1)
		out <- ledger.TxStatus{Kind: ledger.StatusInvalid}
		close(out)
		return hash, out, nil
	}
	out := make(chan ledger.TxStatus, len(l.script))
	for _, kind := range l.script {
		status := ledger.TxStatus{Kind: kind}
		switch kind {
		case ledger.StatusBroadcast:
			status.Peers = []string{"memledger"}
		case ledger.StatusInBlock:
			l.block++
			status.Block = blockHash(l.block)
		case ledger.StatusRetracted, ledger.StatusFinalized, ledger.StatusUsurped, ledger.StatusFinalityTimeout:
			status.Block = blockHash(l.block)
		}
		out <- status
	}
	close(out)
	return hash, out, nil
}

// includes reports whether a status script commits the call.
func includes(script []ledger.TxStatusKind) bool {
	if len(script) == 0 {
		return false
	}
	switch script[len(script)-1] {
	case ledger.StatusDropped, ledger.StatusUsurped, ledger.StatusInvalid, ledger.StatusFinalityTimeout:
		return false
	}
	for _, kind := range script {
		if kind == ledger.StatusInBlock || kind == ledger.StatusFinalized {
			return true
		}
	}
	return false
}

// checkpoint copies the mutable state and returns a func that puts it back.
func (l *Ledger) checkpoint() func() {
	dids := make(map[signer.AccountID]*didEntry, len(l.dids))
	for owner, entry := range l.dids {
		dids[owner] = entry.clone()
	}
	attestations := make(map[[32]byte]Attestation, len(l.attestations))
	for hash, a := range l.attestations {
		attestations[hash] = a
	}
	return func() {
		l.dids = dids
		l.attestations = attestations
	}
}

func (l *Ledger) txHash(payer signer.AccountID, call []byte) ledger.TxHash {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(len(l.submissions)))
	h, _ := blake2b.New256(nil)
	h.Write(payer[:])
	h.Write(seq[:])
	h.Write(call)
	var out ledger.TxHash
	copy(out[:], h.Sum(nil))
	return out
}

func blockHash(n uint64) [32]byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], n)
	return blake2b.Sum256(raw[:])
}

func (l *Ledger) apply(payer signer.AccountID, raw []byte) error {
	call, err := ledger.ParseCall(raw)
	if errors.Is(err, ledger.ErrUnknownCall) {
		return nil
	}
	if err != nil {
		return err
	}
	switch call.Kind {
	case ledger.CallCreateDid:
		return l.applyCreate(payer, call)
	case ledger.CallSubmitDidCall:
		return l.applyDidCall(payer, call)
	default:
		return fmt.Errorf("%w: call requires did authorization", ErrBadSignature)
	}
}

func (l *Ledger) applyCreate(payer signer.AccountID, call *ledger.DecodedCall) error {
	details := call.Create
	if details.Submitter != payer {
		return ErrWrongSubmitter
	}
	if _, ok := l.dids[details.Did]; ok {
		return ErrDidExists
	}
	authKey, err := authenticationKey(details.Did, details.Encode(), call.Signature)
	if err != nil {
		return err
	}
	entry := &didEntry{doc: did.Document{PublicKeys: make(map[did.KeyID]did.PublicKey)}}
	authKey.BlockNumber = l.block
	entry.doc.AuthenticationKey = authKey.ID()
	entry.doc.PublicKeys[authKey.ID()] = authKey
	for _, k := range details.KeyAgreementKeys {
		entry.addKeyAgreement(k, l.block)
	}
	if details.AttestationKey != nil {
		k := *details.AttestationKey
		k.BlockNumber = l.block
		id := k.ID()
		entry.doc.AttestationKey = &id
		entry.doc.PublicKeys[id] = k
	}
	if details.DelegationKey != nil {
		k := *details.DelegationKey
		k.BlockNumber = l.block
		id := k.ID()
		entry.doc.DelegationKey = &id
		entry.doc.PublicKeys[id] = k
	}
	for _, ep := range details.Services {
		if err := entry.addService(ep); err != nil {
			return err
		}
	}
	l.dids[details.Did] = entry
	return nil
}

// authenticationKey derives the DID's authentication key from its account
// and checks the creation signature against it.
func authenticationKey(owner signer.AccountID, msg []byte, sig signer.TaggedSignature) (did.PublicKey, error) {
	var key did.PublicKey
	switch sig.Algorithm {
	case signer.Sr25519:
		key = did.PublicKey{Kind: did.VerificationKey, Type: did.KeySr25519, Bytes: owner.Bytes()}
	case signer.Ed25519:
		key = did.PublicKey{Kind: did.VerificationKey, Type: did.KeyEd25519, Bytes: owner.Bytes()}
	case signer.Ecdsa:
		pub, err := signer.RecoverEcdsaPublicKey(msg, sig)
		if err != nil || signer.EcdsaAccountID(pub) != owner {
			return key, ErrBadSignature
		}
		key = did.PublicKey{Kind: did.VerificationKey, Type: did.KeyEcdsa, Bytes: pub}
	default:
		return key, ErrBadSignature
	}
	if !signer.VerifyWithPublicKey(key.Bytes, msg, sig) {
		return key, ErrBadSignature
	}
	return key, nil
}

func (l *Ledger) applyDidCall(payer signer.AccountID, call *ledger.DecodedCall) error {
	op := call.Operation
	if op.Submitter != payer {
		return ErrWrongSubmitter
	}
	entry, ok := l.dids[op.Did]
	if !ok {
		return apperr.Did(apperr.ErrDidNotFound, did.FromAccount(op.Did))
	}
	if op.TxCounter != entry.doc.LastTxCounter+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrBadCounter, op.TxCounter, entry.doc.LastTxCounter+1)
	}
	auth, ok := entry.doc.PublicKeys[entry.doc.AuthenticationKey]
	if !ok || !signer.VerifyWithPublicKey(auth.Bytes, op.Encode(), call.Signature) {
		return ErrBadSignature
	}
	switch call.Inner.Kind {
	case ledger.CallAddAttestation:
		if _, exists := l.attestations[call.Inner.ClaimHash]; exists {
			return fmt.Errorf("attestation %x already exists", call.Inner.ClaimHash)
		}
		l.attestations[call.Inner.ClaimHash] = Attestation{CtypeHash: call.Inner.CtypeHash, Attester: op.Did}
	case ledger.CallAddServiceEndpoint:
		if err := entry.addService(call.Inner.Endpoint); err != nil {
			return err
		}
	case ledger.CallRemoveServiceEndpoint:
		if err := entry.removeService(call.Inner.Endpoint.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: inner call kind %d", ledger.ErrUnknownCall, call.Inner.Kind)
	}
	entry.doc.LastTxCounter = op.TxCounter
	return nil
}

func (e *didEntry) addKeyAgreement(key [did.EncryptionKeySize]byte, block uint64) did.KeyID {
	pk := did.PublicKey{Kind: did.EncryptionKey, Type: did.KeyX25519, Bytes: append([]byte(nil), key[:]...), BlockNumber: block}
	id := pk.ID()
	if _, ok := e.doc.PublicKeys[id]; !ok {
		e.doc.KeyAgreementKeys = append(e.doc.KeyAgreementKeys, id)
	}
	e.doc.PublicKeys[id] = pk
	return id
}

func (e *didEntry) addService(ep did.ServiceEndpoint) error {
	if ep.ID == "" || len(ep.URLs) == 0 {
		return fmt.Errorf("%w: id and url are required", ErrEndpoint)
	}
	for _, existing := range e.services {
		if existing.ID == ep.ID {
			return fmt.Errorf("%w: id %q already in use", ErrEndpoint, ep.ID)
		}
	}
	e.services = append(e.services, cloneEndpoint(ep))
	return nil
}

func (e *didEntry) removeService(id string) error {
	for i, existing := range e.services {
		if existing.ID == id {
			e.services = append(e.services[:i], e.services[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: id %q not found", ErrEndpoint, id)
}

func (e *didEntry) snapshot() *did.Document {
	doc := e.doc
	doc.KeyAgreementKeys = append([]did.KeyID(nil), e.doc.KeyAgreementKeys...)
	doc.PublicKeys = make(map[did.KeyID]did.PublicKey, len(e.doc.PublicKeys))
	for id, k := range e.doc.PublicKeys {
		k.Bytes = bytes.Clone(k.Bytes)
		doc.PublicKeys[id] = k
	}
	return &doc
}

func (e *didEntry) clone() *didEntry {
	out := &didEntry{doc: *e.snapshot(), web3Name: e.web3Name}
	for _, ep := range e.services {
		out.services = append(out.services, cloneEndpoint(ep))
	}
	return out
}

func cloneEndpoint(ep did.ServiceEndpoint) did.ServiceEndpoint {
	return did.ServiceEndpoint{
		ID:    ep.ID,
		Types: append([]string(nil), ep.Types...),
		URLs:  append([]string(nil), ep.URLs...),
	}
}

var _ ledger.Client = (*Ledger)(nil)
