package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"rently/internal/domain"
)

var _ domain.ListingSource = (*Client)(nil)

// Client reads listings and promotions from the upstream listings service.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) GetListing(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	return out, c.get(ctx, fmt.Sprintf("%s/listings/%s", c.base, url.PathEscape(id)), &out)
}

// GetPromotions returns every active promotion. Older deployments wrap the
// list in {"items": [...]}; both shapes are accepted.
func (c *Client) GetPromotions(ctx context.Context) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.get(ctx, c.base+"/promotions", &raw); err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding promotions: %w", err)
	}
	return wrapped.Items, nil
}

// ---- Internals ----

var (
	ErrNotFound     = fmt.Errorf("listings: %w", domain.ErrNotFound)
	ErrUnauthorized = errors.New("listings: unauthorized")
	ErrForbidden    = errors.New("listings: forbidden")
)

const maxRetries = 3

// statusError is a non-2xx answer the caller may retry.
type statusError struct {
	status int
	wait   time.Duration // from Retry-After, 0 when absent
}

func (e *statusError) Error() string { return fmt.Sprintf("remote %d", e.status) }

// get performs a rate-limited GET and decodes the JSON body into out.
// 429 and transient 5xx answers and network errors are retried with
// jittered exponential backoff, honoring Retry-After when present.
func (c *Client) get(ctx context.Context, u string, out any) error {
	b := retry.WithMaxRetries(maxRetries, retry.WithJitterPercent(50, retry.NewExponential(200*time.Millisecond)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.once(ctx, u, out)
		var se *statusError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &se):
			if se.wait > 0 && !sleepCtx(ctx, se.wait) {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		case errors.Is(err, errTransport):
			return retry.RetryableError(err)
		}
		return err
	})
}

var errTransport = errors.New("listings: transport")

func (c *Client) once(ctx context.Context, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rently-sync/1.0")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &statusError{status: resp.StatusCode, wait: retryAfter(resp)}
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter reads Retry-After in either the seconds or the HTTP-date form.
func retryAfter(resp *http.Response) time.Duration {
	h := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}
