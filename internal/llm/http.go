package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	maxErrorBody       = 512
)

// Config captures the runtime settings shared by every provider.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	// RequestsPerMinute throttles calls to the provider. Zero disables it.
	RequestsPerMinute int
	Languages         Languages
}

// Option customizes a provider.
type Option func(*transport)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *transport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

type httpStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s request: http %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

// transport is the HTTP plumbing shared by providers.
type transport struct {
	provider   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newTransport(provider string, cfg Config, opts []Option) *transport {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	t := &transport{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *transport) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload, out any) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s request: encode body: %w", t.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%s request: new request: %w", t.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", t.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s request: read body: %w", t.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{Provider: t.provider, StatusCode: resp.StatusCode, Body: errorSnippet(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s request: decode response: %w", t.provider, err)
	}
	return nil
}

// errorSnippet truncates body to at most maxErrorBody bytes without splitting
// a UTF-8 sequence.
func errorSnippet(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

func checkCount(provider string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: returned %d translations for %d sentences", provider, got, want)
	}
	return nil
}
