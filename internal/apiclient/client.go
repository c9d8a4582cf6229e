// Package apiclient talks to the payment request backend. Every operation
// returns either the decoded success payload or a normalized *APIError; there is
// no retry logic at this layer.
package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/punchamoorthee/qrpay/internal/domain"
	"github.com/punchamoorthee/qrpay/internal/log"
	"github.com/rs/zerolog"
)

// AccountIDHeader identifies the calling account to the backend.
const AccountIDHeader = "X-Account-ID"

// Config configures the API client.
type Config struct {
	// BaseURL is the origin of the backend, e.g. http://localhost:8080.
	BaseURL string

	// AccountID is sent with account-scoped operations (optional).
	AccountID int64

	// Timeout for a single request (optional, defaults to 10s).
	Timeout time.Duration

	// HTTPClient overrides the underlying transport (optional).
	HTTPClient *http.Client
}

type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func New(cfg Config) *Client {
	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.AccountID > 0 {
		rc.SetHeader(AccountIDHeader, strconv.FormatInt(cfg.AccountID, 10))
	}

	return &Client{http: rc, logger: log.WithComponent("apiclient")}
}

// Create issues a new payment request. idempotencyKey may be empty.
func (c *Client) Create(ctx context.Context, req domain.CreateRequest, idempotencyKey string) (*domain.CreateResponse, error) {
	var out domain.CreateResponse
	r := c.http.R().SetBody(req)
	if idempotencyKey != "" {
		r.SetHeader("Idempotency-Key", idempotencyKey)
	}
	if err := c.do(ctx, "create", r, http.MethodPost, "/api/v1/payments/requests", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status probes the authoritative status of a request.
func (c *Client) Status(ctx context.Context, requestID string) (*domain.StatusResponse, error) {
	var out domain.StatusResponse
	r := c.http.R().SetPathParam("id", requestID)
	if err := c.do(ctx, "status", r, http.MethodGet, "/api/v1/payments/requests/{id}/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Expire marks a request expired on the server.
func (c *Client) Expire(ctx context.Context, requestID string) error {
	r := c.http.R().SetPathParam("id", requestID)
	return c.do(ctx, "expire", r, http.MethodPost, "/api/v1/payments/requests/{id}/expire", nil)
}

// Cancel withdraws a pending request owned by the caller.
func (c *Client) Cancel(ctx context.Context, requestID string) error {
	r := c.http.R().SetPathParam("id", requestID)
	return c.do(ctx, "cancel", r, http.MethodDelete, "/api/v1/payments/requests/{id}", nil)
}

// Act approves or declines a request as the paying party.
func (c *Client) Act(ctx context.Context, requestID string, action domain.Action) (*domain.ActionResponse, error) {
	var out domain.ActionResponse
	r := c.http.R().SetBody(domain.ActionRequest{RequestID: requestID, Action: action})
	if err := c.do(ctx, "process_action", r, http.MethodPost, "/api/v1/payments/actions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirmation loads the paying party's preview of a request.
func (c *Client) Confirmation(ctx context.Context, requestID string) (*domain.ConfirmationData, error) {
	var out domain.ConfirmationData
	r := c.http.R().SetPathParam("id", requestID)
	if err := c.do(ctx, "confirmation", r, http.MethodGet, "/api/v1/payments/requests/{id}/confirmation", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the caller's wallet balance.
func (c *Client) Balance(ctx context.Context) (*domain.BalanceResponse, error) {
	var out domain.BalanceResponse
	if err := c.do(ctx, "balance", c.http.R(), http.MethodGet, "/api/v1/wallet/balance", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op string, r *resty.Request, method, path string, out interface{}) error {
	l := log.WithContext(ctx, c.logger)
	start := time.Now()
	resp, err := r.SetContext(ctx).Execute(method, path)
	if err != nil {
		l.Debug().Err(err).Str("operation", op).Msg("request failed without response")
		return networkError(op, err)
	}

	l.Debug().
		Str("operation", op).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("request completed")

	if !resp.IsSuccess() {
		return statusError(op, resp.StatusCode(), resp.Body())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &APIError{
			Operation:  op,
			StatusCode: resp.StatusCode(),
			Message:    "invalid response body",
			Sentinel:   ErrBadResponse,
			Err:        err,
		}
	}
	return nil
}
