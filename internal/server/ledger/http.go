package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
)

// Config tunes the HTTP client. Zero values fall back to the defaults
// below.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	RequestsPerSec float64
	Burst          int
}

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 1 * time.Second
)

// HTTPClient implements Client over the ledger's JSON API. Every reply is
// an Ok/Err envelope; transport failures and 5xx replies are retried with
// exponential backoff, a well-formed Err reply is a final rejection.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	logger      logging.Logger
}

func NewHTTPClient(cfg Config, logger logging.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		logger:      logger,
	}
}

// envelope mirrors the ledger's reply variants.
type envelope struct {
	Ok  json.RawMessage `json:"Ok,omitempty"`
	Err string          `json:"Err,omitempty"`
}

func (c *HTTPClient) Mint(ctx context.Context, rec *Record) (*Record, error) {
	var out Record
	if err := c.call(ctx, http.MethodPost, "/api/v1/records", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Update(ctx context.Context, id string, rec *Record) (*Record, error) {
	var out Record
	if err := c.call(ctx, http.MethodPut, "/api/v1/records/"+url.PathEscape(id), rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Get(ctx context.Context, id string) (*Record, error) {
	var out Record
	err := c.call(ctx, http.MethodGet, "/api/v1/records/"+url.PathEscape(id), nil, &out)
	if err != nil {
		// absent records come back as a rejection with a fixed reason
		if errors.Is(err, common.ErrLedgerRejected) && strings.Contains(err.Error(), "not found") {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListAll(ctx context.Context) ([]*Record, error) {
	var out []*Record
	if err := c.call(ctx, http.MethodGet, "/api/v1/records", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.call(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call runs one logical operation with the retry policy: up to maxRetries
// attempts, sleeping backoffBase·2^n after failed attempt n. Rejections
// and malformed replies are final; only transport errors and 5xx replies
// retry.
func (c *HTTPClient) call(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", common.ErrSerialization, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrLedgerRejected) || errors.Is(err, common.ErrSerialization) {
			return err
		}
		lastErr = err
		c.logger.Warn(ctx, "ledger call failed", "method", method, "path", path, "attempt", attempt+1, "error", err)

		if attempt < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoffBase << attempt):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", common.ErrLedgerUnavailable, c.maxRetries, lastErr)
}

func (c *HTTPClient) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("ledger replied %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode reply: %v", common.ErrSerialization, err)
	}
	if env.Err != "" {
		return fmt.Errorf("%w: %s", common.ErrLedgerRejected, env.Err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Ok, out); err != nil {
			return fmt.Errorf("%w: decode payload: %v", common.ErrSerialization, err)
		}
	}
	return nil
}
