package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
)

const componentName = "ledger"

var (
	ErrTxNotIncluded  = errors.New("transaction did not reach the requested status")
	ErrInvalidWaitFor = errors.New("invalid wait-for value")
	ErrNoPayer        = errors.New("transaction has no payer")
)

// WaitFor is the completion level Submit waits for.
type WaitFor uint8

const (
	WaitSubmitted WaitFor = iota
	WaitInBlock
	WaitFinalized
)

func (w WaitFor) String() string {
	switch w {
	case WaitSubmitted:
		return "submitted"
	case WaitInBlock:
		return "in-block"
	default:
		return "finalized"
	}
}

func ParseWaitFor(raw string) (WaitFor, error) {
	switch strings.TrimSpace(raw) {
	case "submitted":
		return WaitSubmitted, nil
	case "in-block":
		return WaitInBlock, nil
	case "finalized":
		return WaitFinalized, nil
	default:
		return 0, apperr.Format(fmt.Errorf("%w: %q", ErrInvalidWaitFor, raw))
	}
}

// satisfiedBy reports whether observing kind completes the wait. A higher
// level satisfies a lower one.
func (w WaitFor) satisfiedBy(kind TxStatusKind) bool {
	switch kind {
	case StatusBroadcast:
		return w == WaitSubmitted
	case StatusInBlock:
		return w <= WaitInBlock
	case StatusFinalized:
		return true
	default:
		return false
	}
}

// NotIncludedError reports a status stream that ended, or reached a
// terminal status, before the requested level was observed.
type NotIncludedError struct {
	Hash     TxHash
	WaitFor  WaitFor
	Last     TxStatus
	Observed bool
}

func (e *NotIncludedError) Error() string {
	last := "none"
	if e.Observed {
		last = e.Last.Kind.String()
	}
	return fmt.Sprintf("%v: tx %s waiting for %s, last status %s", ErrTxNotIncluded, e.Hash, e.WaitFor, last)
}

func (e *NotIncludedError) Unwrap() error { return ErrTxNotIncluded }

// StatusRecorder counts observed transaction statuses.
type StatusRecorder interface {
	RecordTxStatus(status string)
}

// Submitter pushes extrinsics to the ledger and follows their status.
type Submitter struct {
	client  Client
	logger  *slog.Logger
	metrics StatusRecorder
}

func NewSubmitter(client Client, logger *slog.Logger, metrics StatusRecorder) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{client: client, logger: logger, metrics: metrics}
}

// Submit sends a DID-authorized transaction, paid by its submitter.
func (s *Submitter) Submit(ctx context.Context, tx SignedTransaction, waitFor WaitFor) (TxHash, error) {
	if tx.payer == nil {
		return TxHash{}, apperr.Ledger(ErrNoPayer)
	}
	return s.SubmitCall(ctx, tx.payer, tx.Call(), waitFor)
}

// SubmitCall sends an arbitrary call paid by payer and waits until the
// status stream satisfies waitFor. Retracted events are logged and the wait
// goes on. Context cancellation returns ctx.Err().
func (s *Submitter) SubmitCall(ctx context.Context, payer signer.Signer, call []byte, waitFor WaitFor) (TxHash, error) {
	if payer == nil {
		return TxHash{}, apperr.Ledger(ErrNoPayer)
	}
	hash, events, err := s.client.SubmitAndWatch(ctx, Extrinsic{Call: call, Payer: payer})
	if err != nil {
		return TxHash{}, apperr.Ledger(fmt.Errorf("submit extrinsic: %w", err))
	}
	s.logger.Info("extrinsic submitted",
		"component", componentName,
		"operation", "submit",
		"tx_hash", hash.String(),
		"wait_for", waitFor.String(),
	)

	var (
		last     TxStatus
		observed bool
	)
	for {
		select {
		case <-ctx.Done():
			return hash, ctx.Err()
		case status, ok := <-events:
			if !ok {
				return hash, s.notIncluded(hash, waitFor, last, observed)
			}
			last, observed = status, true
			s.observe(hash, status)
			if waitFor.satisfiedBy(status.Kind) {
				return hash, nil
			}
			if status.Terminal() {
				return hash, s.notIncluded(hash, waitFor, last, observed)
			}
		}
	}
}

func (s *Submitter) observe(hash TxHash, status TxStatus) {
	if s.metrics != nil {
		s.metrics.RecordTxStatus(status.Kind.String())
	}
	attrs := []any{
		"component", componentName,
		"operation", "watch",
		"tx_hash", hash.String(),
		"status", status.Kind.String(),
	}
	switch status.Kind {
	case StatusBroadcast:
		attrs = append(attrs, "peers", len(status.Peers))
	case StatusInBlock, StatusRetracted, StatusFinalized, StatusUsurped, StatusFinalityTimeout:
		attrs = append(attrs, "block", status.BlockHex())
	}
	switch status.Kind {
	case StatusDropped, StatusInvalid, StatusUsurped, StatusFinalityTimeout:
		s.logger.Warn("extrinsic status", attrs...)
	default:
		s.logger.Info("extrinsic status", attrs...)
	}
}

func (s *Submitter) notIncluded(hash TxHash, waitFor WaitFor, last TxStatus, observed bool) error {
	err := &NotIncludedError{Hash: hash, WaitFor: waitFor, Last: last, Observed: observed}
	s.logger.Warn("extrinsic not included",
		"component", componentName,
		"operation", "watch",
		"tx_hash", hash.String(),
		"error", err.Error(),
	)
	return apperr.Ledger(err)
}
