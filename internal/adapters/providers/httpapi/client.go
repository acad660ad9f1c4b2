// Package httpapi adapts a remote screening data provider speaking the
// normalized JSON contract. The adapter is single-shot: retry, backoff,
// and breaker policy live in the request router
package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/subject"
	"backcheck/internal/platform/logger"
	"backcheck/internal/services/providers/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultUA       = "backcheck-router"
	defaultFreshFor = 24 * time.Hour
	defaultStaleFor = 72 * time.Hour
)

// Options configures the Client
type Options struct {
	ID        string
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	Checks    []compliance.CheckType
	CostCents int
}

// Client implements domain.Adapter over HTTP
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
	now  func() time.Time
}

// New creates a Client with sane defaults
func New(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("provider-" + o.ID),
		now:  time.Now,
	}
}

// ID implements domain.Adapter
func (c *Client) ID() string { return c.opts.ID }

// SupportedChecks implements domain.Adapter
func (c *Client) SupportedChecks() []compliance.CheckType {
	out := make([]compliance.CheckType, len(c.opts.Checks))
	copy(out, c.opts.Checks)
	return out
}

// executeRequest is the wire body for POST /v1/execute
type executeRequest struct {
	Check   compliance.CheckType `json:"check"`
	Subject subject.Subject      `json:"subject"`
	Locale  string               `json:"locale"`
	Params  map[string]string    `json:"params,omitempty"`
}

// executeResponse is the wire body the provider returns
type executeResponse struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data"`
	CostCents int            `json:"cost_cents"`
	FreshForS int            `json:"fresh_for_s"`
	StaleForS int            `json:"stale_for_s"`
	ErrorCode string         `json:"error_code"`
	Error     string         `json:"error"`
}

// Execute implements domain.Adapter
func (c *Client) Execute(ctx context.Context, check compliance.CheckType, sub subject.Subject, locale string, params map[string]string) (domain.Result, error) {
	body, err := json.Marshal(executeRequest{Check: check, Subject: sub, Locale: locale, Params: params})
	if err != nil {
		return domain.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	lat := c.now().Sub(start)

	res := domain.Result{
		ProviderID: c.opts.ID,
		Latency:    lat,
		CostCents:  c.opts.CostCents,
		AcquiredAt: c.now().UTC(),
	}

	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{}, ctx.Err()
		}
		res.ErrorCode = domain.ErrTimeout
		res.ErrorMsg = err.Error()
		return res, nil
	}
	defer func() { _ = drainAndClose(resp.Body) }()

	c.log.Debug().
		Str("check", string(check)).
		Int("status", resp.StatusCode).
		Dur("latency", lat).
		Msg("provider http response")

	switch {
	case resp.StatusCode == http.StatusOK:
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			res.ErrorCode = domain.ErrProvider
			res.ErrorMsg = "read body: " + err.Error()
			return res, nil
		}
		var wire executeResponse
		if err := json.Unmarshal(raw, &wire); err != nil {
			res.ErrorCode = domain.ErrProvider
			res.ErrorMsg = "decode body: " + err.Error()
			return res, nil
		}
		sum := sha256.Sum256(raw)
		res.RawHash = hex.EncodeToString(sum[:])
		if !wire.Success {
			res.ErrorCode = orCode(wire.ErrorCode, domain.ErrProvider)
			res.ErrorMsg = wire.Error
			return res, nil
		}
		res.Success = true
		res.Data = wire.Data
		if wire.CostCents > 0 {
			res.CostCents = wire.CostCents
		}
		res.FreshFor = secondsOrDefault(wire.FreshForS, defaultFreshFor)
		res.StaleFor = secondsOrDefault(wire.StaleForS, defaultStaleFor)
		return res, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		res.ErrorCode = domain.ErrRateLimited
		res.ErrorMsg = "provider rate limited"
		res.RetryAfter = retryAfterOf(resp.Header)
		return res, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		res.ErrorCode = domain.ErrAuthFailure
		res.ErrorMsg = "provider rejected credentials"
		return res, nil

	case resp.StatusCode == http.StatusNotFound:
		res.ErrorCode = domain.ErrNotFound
		res.ErrorMsg = "subject not found"
		return res, nil

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		res.ErrorCode = domain.ErrInvalidSubject
		res.ErrorMsg = "provider rejected subject"
		return res, nil

	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		res.ErrorCode = domain.ErrTimeout
		res.ErrorMsg = "provider timed out"
		return res, nil

	default:
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		res.ErrorCode = domain.ErrProvider
		res.ErrorMsg = "status " + strconv.Itoa(resp.StatusCode) + " body " + string(tail)
		return res, nil
	}
}

// HealthCheck implements domain.Adapter
func (c *Client) HealthCheck(ctx context.Context) domain.Health {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/health", nil)
	if err != nil {
		return domain.Health{Status: domain.HealthUnhealthy, Detail: err.Error()}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := c.now()
	resp, err := c.http.Do(req)
	lat := c.now().Sub(start)
	if err != nil {
		return domain.Health{Status: domain.HealthUnhealthy, Latency: lat, Detail: err.Error()}
	}
	_ = drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK && lat < 2*time.Second:
		return domain.Health{Status: domain.HealthHealthy, Latency: lat}
	case resp.StatusCode == http.StatusOK:
		return domain.Health{Status: domain.HealthDegraded, Latency: lat, Detail: "slow health probe"}
	default:
		return domain.Health{Status: domain.HealthUnhealthy, Latency: lat, Detail: "status " + strconv.Itoa(resp.StatusCode)}
	}
}

func retryAfterOf(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	return 0
}

func secondsOrDefault(s int, def time.Duration) time.Duration {
	if s > 0 {
		return time.Duration(s) * time.Second
	}
	return def
}

func orCode(code, def string) string {
	if code != "" {
		return code
	}
	return def
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}
