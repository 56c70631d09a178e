package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PranayPant/speech-to-text/internal/pipeline"
	"github.com/PranayPant/speech-to-text/internal/services"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com"
	defaultLanguageCode = "hi"
	requestTimeout      = 30 * time.Second
	uploadTimeout       = 30 * time.Minute
)

// Status is the lifecycle state reported by the transcription provider.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// TranscriptRecord is the provider's view of one transcription job.
type TranscriptRecord struct {
	Status     Status         `json:"status,omitempty"`
	Transcript *string        `json:"transcript"`
	Sentences  []pipeline.Cue `json:"sentences"`
	SRT        *string        `json:"srt"`
	Error      string         `json:"error,omitempty"`
}

// FetchOptions selects which transcript artifacts to download.
type FetchOptions struct {
	Transcript bool
	Sentences  bool
	SRT        bool
}

// ProgressFunc is called with (bytesRead, totalBytes) during upload.
type ProgressFunc func(bytesRead, totalBytes int64)

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	callback ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if pr.callback != nil {
		pr.callback(pr.read, pr.total)
	}
	return n, err
}

// Client talks to the AssemblyAI v2 REST API.
type Client struct {
	apiKey       string
	baseURL      string
	languageCode string
	httpClient   *http.Client
	uploadClient *http.Client
	limiter      *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client used for both API calls and uploads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			c.uploadClient = client
		}
	}
}

// WithLanguageCode sets the spoken language submitted with new transcripts.
func WithLanguageCode(code string) Option {
	return func(c *Client) {
		if code = strings.TrimSpace(code); code != "" {
			c.languageCode = code
		}
	}
}

// WithRateLimit caps outgoing requests per minute. Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
		}
	}
}

// NewClient constructs an AssemblyAI client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      defaultBaseURL,
		languageCode: defaultLanguageCode,
		httpClient:   &http.Client{Timeout: requestTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

type sentencesResponse struct {
	Sentences []struct {
		Text  string `json:"text"`
		Start int64  `json:"start"`
		End   int64  `json:"end"`
	} `json:"sentences"`
}

// Fetch reads the transcript status and, once the transcript is completed, the
// requested artifacts. Each artifact is downloaded concurrently into its own
// named slot.
func (c *Client) Fetch(ctx context.Context, transcriptID string, opts FetchOptions) (*TranscriptRecord, error) {
	transcriptID = strings.TrimSpace(transcriptID)
	if transcriptID == "" {
		return nil, services.Wrap(services.ErrValidation, "fetch transcript", "transcript id required", nil)
	}
	base := "/v2/transcript/" + url.PathEscape(transcriptID)

	var head transcriptResponse
	if err := c.getJSON(ctx, base, &head); err != nil {
		return nil, err
	}

	record := &TranscriptRecord{Status: head.Status, Error: head.Error}
	if head.Status == StatusError {
		return nil, services.Wrap(services.ErrUpstreamTranscript, "fetch transcript "+transcriptID, "transcription failed: "+head.Error, nil)
	}
	if opts.Transcript {
		text := head.Text
		record.Transcript = &text
	}
	if head.Status != StatusCompleted {
		slog.Debug("transcript not completed", "transcript_id", transcriptID, "status", head.Status)
		return record, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Sentences {
		g.Go(func() error {
			var resp sentencesResponse
			if err := c.getJSON(gctx, base+"/sentences", &resp); err != nil {
				return err
			}
			cues := make([]pipeline.Cue, 0, len(resp.Sentences))
			for _, s := range resp.Sentences {
				cues = append(cues, pipeline.NewCue(s.Text, s.Start, s.End))
			}
			record.Sentences = cues
			return nil
		})
	}
	if opts.SRT {
		g.Go(func() error {
			body, err := c.get(gctx, base+"/srt")
			if err != nil {
				return err
			}
			srt := string(body)
			record.SRT = &srt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return record, nil
}

// CreateTranscript submits an uploaded audio URL for transcription and returns
// the transcript id.
func (c *Client) CreateTranscript(ctx context.Context, audioURL string) (string, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return "", services.Wrap(services.ErrValidation, "create transcript", "audio url required", nil)
	}
	payload, err := json.Marshal(map[string]string{
		"audio_url":     audioURL,
		"language_code": c.languageCode,
	})
	if err != nil {
		return "", fmt.Errorf("encode transcript request: %w", err)
	}

	var resp transcriptResponse
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", services.Wrap(services.ErrUpstreamTranscript, "create transcript", "response carried no id", nil)
	}
	return resp.ID, nil
}

// UploadAudio streams raw audio to the provider and returns the private URL to
// pass to CreateTranscript.
func (c *Client) UploadAudio(ctx context.Context, r io.Reader, size int64, progress ProgressFunc) (string, error) {
	body := &progressReader{reader: r, total: size, callback: progress}

	var resp struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(ctx, c.uploadClient, http.MethodPost, "/v2/upload", "application/octet-stream", body, &resp); err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", services.Wrap(services.ErrUpstreamTranscript, "upload audio", "response carried no upload_url", nil)
	}
	return resp.UploadURL, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, c.httpClient, http.MethodGet, path, "", nil, out)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var raw []byte
	err := c.do(ctx, c.httpClient, http.MethodGet, path, "", nil, &raw)
	return raw, err
}

// do issues one request. out may be *[]byte to receive the raw body.
func (c *Client) do(ctx context.Context, client *http.Client, method, path, contentType string, body io.Reader, out any) error {
	op := method + " " + path
	if c.apiKey == "" {
		return services.Wrap(services.ErrUpstreamTranscript, op, "api key required", nil)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vals := range requestHeaders(c.apiKey) {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrUpstreamTranscript, op, "request failed", err)
	}
	defer resp.Body.Close()
	slog.Debug("assemblyai request", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return services.Wrap(services.ErrNotFound, op, strings.TrimSpace(string(respBody)), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return services.Wrap(services.ErrUpstreamTranscript, op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	if raw, ok := out.(*[]byte); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return services.Wrap(services.ErrUpstreamTranscript, op, "read response", err)
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrUpstreamTranscript, op, "decode response", err)
	}
	return nil
}
