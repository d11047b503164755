package login

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"olibox/agent/internal/apperr"
	"olibox/agent/internal/crypto/signer"
	"olibox/agent/internal/did"

	"github.com/go-resty/resty/v2"
)

const (
	componentName = "login"
	randomLength  = 12
	alphanumeric  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrAuthorize   = errors.New("authorize request failed")
	ErrStatus      = errors.New("unexpected login response status")
	ErrNoLocation  = errors.New("location is not present in response")
	ErrNoIDToken   = errors.New("id token not present")
	ErrBadLocation = errors.New("location is not a valid url")
)

type LoginRequest struct {
	ClientID     string
	AuthEndpoint string
	RedirectURL  string
}

// KeyResolver finds the authentication key URI of a DID on the ledger.
type KeyResolver interface {
	AuthenticationKeyURI(ctx context.Context, didURI string) (string, error)
}

type LoginRecorder interface {
	RecordLogin(result string)
}

type Client struct {
	logger  *slog.Logger
	metrics LoginRecorder
	timeout time.Duration
	now     func() time.Time
}

func NewClient(logger *slog.Logger, metrics LoginRecorder, timeout time.Duration) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger, metrics: metrics, timeout: timeout, now: time.Now}
}

// Login runs the implicit id_token flow: authorize to obtain a session
// cookie, then post a self-signed token and read id_token from the fragment
// of the redirect location.
func (c *Client) Login(ctx context.Context, req LoginRequest, s signer.Signer, resolver KeyResolver) (string, error) {
	token, err := c.login(ctx, req, s, resolver)
	if err != nil {
		c.record("failure")
		c.logger.Warn("login failed",
			"component", componentName,
			"operation", "login",
			"error", err.Error(),
		)
		return "", err
	}
	c.record("success")
	c.logger.Info("login succeeded",
		"component", componentName,
		"operation", "login",
		"did", did.FromAccount(s.AccountID()),
	)
	return token, nil
}

func (c *Client) login(ctx context.Context, req LoginRequest, s signer.Signer, resolver KeyResolver) (string, error) {
	endpoint := strings.TrimRight(req.AuthEndpoint, "/")
	nonce, err := randomString(randomLength)
	if err != nil {
		return "", apperr.Login(err)
	}
	state, err := randomString(randomLength)
	if err != nil {
		return "", apperr.Login(err)
	}

	// resty.New carries its own cookie jar, so the authorize session cookie
	// is replayed on the token post.
	httpc := resty.New().
		SetTimeout(c.timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))

	resp, err := httpc.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"response_type": "id_token",
			"client_id":     req.ClientID,
			"redirect_uri":  req.RedirectURL,
			"scope":         "openid",
			"state":         state,
			"nonce":         nonce,
		}).
		Get(endpoint + "/api/v1/authorize")
	if err != nil {
		return "", apperr.Login(fmt.Errorf("%w: %v", ErrAuthorize, err))
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return "", apperr.Login(fmt.Errorf("%w: status %d", ErrAuthorize, resp.StatusCode()))
	}

	didURI := did.FromAccount(s.AccountID())
	keyURI, err := resolver.AuthenticationKeyURI(ctx, didURI)
	if err != nil {
		return "", err
	}
	token, err := BuildToken(didURI, keyURI, nonce, s, c.now())
	if err != nil {
		return "", apperr.Login(err)
	}

	resp, err = httpc.R().SetContext(ctx).Post(endpoint + "/api/v1/did/" + token)
	if err != nil {
		return "", apperr.Login(fmt.Errorf("post token: %w", err))
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusBadRequest {
		return "", apperr.Login(fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode()))
	}
	location := resp.Header().Get("Location")
	if location == "" {
		return "", apperr.Login(ErrNoLocation)
	}
	return idTokenFromLocation(location)
}

func (c *Client) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordLogin(result)
	}
}

func idTokenFromLocation(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", apperr.Login(fmt.Errorf("%w: %v", ErrBadLocation, err))
	}
	for _, segment := range strings.Split(u.Fragment, "&") {
		if token, ok := strings.CutPrefix(segment, "id_token="); ok && token != "" {
			return token, nil
		}
	}
	return "", apperr.Login(ErrNoIDToken)
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[v.Int64()]
	}
	return string(out), nil
}

// TokenCache holds the current id_token of this process.
type TokenCache struct {
	mu    sync.Mutex
	token string
	now   func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Ensure returns the cached token, calling login first if it is missing or
// expired. Concurrent callers wait for a single refresh.
func (c *TokenCache) Ensure(ctx context.Context, login func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if CheckHealth(c.token, c.now()) {
		return c.token, nil
	}
	token, err := login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *TokenCache) Reset() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
