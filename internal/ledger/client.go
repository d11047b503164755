// Package ledger builds DID-authorized calls for the identity ledger and
// drives submitted transactions to the finality level a caller asks for.
// The node itself is reached through Client.
package ledger

import (
	"context"
	"encoding/hex"
	"fmt"

	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"
)

// TxHash is the 32-byte extrinsic hash.
type TxHash [32]byte

func (h TxHash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// Extrinsic is a call the client signs with Payer and submits.
type Extrinsic struct {
	Call  []byte
	Payer signer.Signer
}

// Client is the ledger node as seen by the agent. Lookups of a DID that is
// not on chain fail with an error matching apperr.ErrDidNotFound.
type Client interface {
	// ReplayCounter returns the last tx counter used by the DID.
	ReplayCounter(ctx context.Context, owner signer.AccountID) (uint64, error)
	CurrentBlock(ctx context.Context) (uint64, error)
	DidDocument(ctx context.Context, owner signer.AccountID) (*did.Document, error)
	ServiceEndpoints(ctx context.Context, owner signer.AccountID) ([]did.ServiceEndpoint, error)
	ServiceEndpoint(ctx context.Context, owner signer.AccountID, id string) (*did.ServiceEndpoint, error)
	// Web3Name returns the name claimed by the DID, or "" if none.
	Web3Name(ctx context.Context, owner signer.AccountID) (string, error)
	// SubmitAndWatch submits the extrinsic and streams its status updates.
	// The channel is closed once a terminal status was sent or the
	// subscription ended.
	SubmitAndWatch(ctx context.Context, ext Extrinsic) (TxHash, <-chan TxStatus, error)
}

type TxStatusKind uint8

const (
	StatusFuture TxStatusKind = iota
	StatusReady
	StatusBroadcast
	StatusInBlock
	StatusRetracted
	StatusFinalityTimeout
	StatusFinalized
	StatusUsurped
	StatusDropped
	StatusInvalid
)

func (k TxStatusKind) String() string {
	switch k {
	case StatusFuture:
		return "future"
	case StatusReady:
		return "ready"
	case StatusBroadcast:
		return "broadcast"
	case StatusInBlock:
		return "in_block"
	case StatusRetracted:
		return "retracted"
	case StatusFinalityTimeout:
		return "finality_timeout"
	case StatusFinalized:
		return "finalized"
	case StatusUsurped:
		return "usurped"
	case StatusDropped:
		return "dropped"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", uint8(k))
	}
}

// TxStatus is one event of a transaction's lifecycle. Block is set for
// InBlock, Retracted, Finalized, Usurped and FinalityTimeout; Peers for
// Broadcast.
type TxStatus struct {
	Kind  TxStatusKind
	Block [32]byte
	Peers []string
}

func (s TxStatus) Terminal() bool {
	switch s.Kind {
	case StatusFinalized, StatusUsurped, StatusDropped, StatusInvalid, StatusFinalityTimeout:
		return true
	default:
		return false
	}
}

func (s TxStatus) BlockHex() string { return "0x" + hex.EncodeToString(s.Block[:]) }
