// Package apperr holds the error taxonomy shared by the agent's components
// and its mapping onto HTTP status classes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	CategoryIO          = "io"
	CategoryFormat      = "format"
	CategoryDid         = "did"
	CategoryLedger      = "ledger"
	CategoryChallenge   = "challenge"
	CategoryLightDid    = "light_did"
	CategoryAttestation = "attestation"
	CategoryLogin       = "login"
	CategoryCredential  = "credential"
	CategoryUseCase     = "use_case"
	CategoryInternal    = "internal"
)

var (
	ErrNotFound = errors.New("not found")

	ErrDidNotFound   = fmt.Errorf("did %w", ErrNotFound)
	ErrDidInvalidKey = errors.New("did key is invalid")
	ErrDidMissingKey = errors.New("did key is missing")
	ErrDidFormat     = errors.New("did is malformed")
)

// CategorizedError tags an error with the component category it surfaced from.
type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Category + ": " + e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func normalizeCategory(category string) string {
	switch c := strings.ToLower(strings.TrimSpace(category)); c {
	case CategoryIO, CategoryFormat, CategoryDid, CategoryLedger, CategoryChallenge,
		CategoryLightDid, CategoryAttestation, CategoryLogin, CategoryCredential, CategoryUseCase:
		return c
	default:
		return CategoryInternal
	}
}

// Wrap classifies err. An error that already carries a category keeps it.
func Wrap(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{Category: normalizeCategory(category), Err: err}
}

// New builds a categorized error from a message.
func New(category, format string, args ...any) error {
	return &CategorizedError{Category: normalizeCategory(category), Err: fmt.Errorf(format, args...)}
}

func IO(err error) error          { return Wrap(CategoryIO, err) }
func Format(err error) error      { return Wrap(CategoryFormat, err) }
func Ledger(err error) error      { return Wrap(CategoryLedger, err) }
func Challenge(err error) error   { return Wrap(CategoryChallenge, err) }
func LightDid(err error) error    { return Wrap(CategoryLightDid, err) }
func Attestation(err error) error { return Wrap(CategoryAttestation, err) }
func Login(err error) error       { return Wrap(CategoryLogin, err) }
func Credential(err error) error  { return Wrap(CategoryCredential, err) }
func UseCase(err error) error     { return Wrap(CategoryUseCase, err) }

// Did builds a DID error; reason is one of the ErrDid* sentinels.
func Did(reason error, detail string) error {
	if detail == "" {
		return &CategorizedError{Category: CategoryDid, Err: reason}
	}
	return &CategorizedError{Category: CategoryDid, Err: fmt.Errorf("%w: %s", reason, detail)}
}

// Category reports the category of err, or CategoryInternal if it has none.
func Category(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeCategory(classified.Category)
	}
	return CategoryInternal
}

// HTTPStatus maps err onto the status a web layer should answer with:
// parse failures and missing entities are client errors, upstream and
// infrastructure failures are server errors.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	switch Category(err) {
	case CategoryFormat, CategoryLightDid, CategoryAttestation, CategoryDid,
		CategoryCredential, CategoryUseCase:
		return http.StatusBadRequest
	case CategoryChallenge:
		return http.StatusUnauthorized
	case CategoryLogin:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
