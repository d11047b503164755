package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"olibox/agent/internal/apperr"
	"olibox/agent/pkg/models"

	"github.com/go-resty/resty/v2"
)

const attestationRequestPath = "/api/v1/attestation_request"

var ErrAttester = errors.New("attester request failed")

// AttesterClient submits base claims to the attester service and lists
// the attestations issued for this device.
type AttesterClient struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewAttesterClient(baseURL string, timeout time.Duration, logger *slog.Logger) *AttesterClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttesterClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

func (a *AttesterClient) PostAttestationRequest(ctx context.Context, token string, credential models.Credential) error {
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(credential).
		Post(attestationRequestPath)
	if err != nil {
		return apperr.Credential(fmt.Errorf("%w: %v", ErrAttester, err))
	}
	if resp.IsError() {
		return apperr.Credential(fmt.Errorf("%w: status %d", ErrAttester, resp.StatusCode()))
	}
	a.logger.Info("attestation request sent",
		"component", componentName,
		"operation", "post_attestation_request",
		"status", resp.StatusCode(),
	)
	return nil
}

func (a *AttesterClient) GetAttestations(ctx context.Context, token string) (json.RawMessage, error) {
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(attestationRequestPath)
	if err != nil {
		return nil, apperr.Credential(fmt.Errorf("%w: %v", ErrAttester, err))
	}
	if resp.IsError() {
		return nil, apperr.Credential(fmt.Errorf("%w: status %d", ErrAttester, resp.StatusCode()))
	}
	body := resp.Body()
	if !json.Valid(body) {
		return nil, apperr.Credential(fmt.Errorf("%w: response is not json", ErrAttester))
	}
	return json.RawMessage(body), nil
}
