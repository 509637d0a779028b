// Package upbit implements the authenticated exchange protocol client:
// signed REST calls with retry/backoff, error classification, and the
// account/order/limits queries the live loop depends on.
package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/metrics"
)

const defaultBaseURL = "https://api.upbit.com/v1"

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Client talks to the exchange REST API. Authenticated calls carry a JWT
// bearer token with a per-request nonce and, when query parameters are
// present, a SHA512 hash of the canonical query string.
type Client struct {
	accessKey  string
	secretKey  string
	baseURL    string
	http       *http.Client
	log        zerolog.Logger
	maxRetries int
	sleep      func(time.Duration)
}

// Option configures Client construction.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMaxRetries overrides the transient-failure attempt cap.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// withSleep replaces the backoff sleeper in tests.
func withSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

// New constructs a client. Keys may be empty for public endpoints only.
func New(accessKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
		http:       &http.Client{Timeout: 20 * time.Second},
		log:        zerolog.Nop(),
		maxRetries: 5,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requireKeys() error {
	if c.accessKey == "" || c.secretKey == "" {
		return errors.New("upbit: API keys are required for authenticated calls")
	}
	return nil
}

// authToken builds the signed bearer token. query is the exact encoded
// string sent with the request so the server can verify parameter integrity.
func (c *Client) authToken(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.secretKey))
}

// request issues one logical call with the shared retry policy: 429/5xx and
// transport failures back off (capped exponential, jittered, Retry-After as
// a floor) up to the attempt cap; every other non-2xx status is classified
// and fails immediately.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}
	backoff := initialBackoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, retryAfter, err := c.do(ctx, method, path, query, signed)
		if err == nil {
			return body, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind != KindRateLimit && apiErr.Status < 500 {
			return nil, err
		}
		if attempt == c.maxRetries-1 {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrRetryExhausted, method, path, err)
		}
		wait := backoff
		if retryAfter > wait {
			wait = retryAfter
		}
		wait = time.Duration(float64(wait) * (1.0 + 0.2*rand.Float64()))
		metrics.APIRetriesTotal.Inc()
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Dur("wait", wait).Int("attempt", attempt+1).Msg("api retry")
		c.sleep(wait)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrRetryExhausted, method, path)
}

func (c *Client) do(ctx context.Context, method, path, query string, signed bool) ([]byte, time.Duration, error) {
	endpoint := c.baseURL + path
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = strings.NewReader(query)
	} else if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		token, err := c.authToken(query)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, 0, nil
	}
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	return nil, retryAfter, classifyStatus(resp.StatusCode, body)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// QuantizePrice rounds a price down to the nearest multiple of the market's
// tick size. A non-positive tick leaves the price unchanged.
func QuantizePrice(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	steps := float64(int64(price / tick))
	return steps * tick
}
