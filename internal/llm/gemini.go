package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash-exp"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Gemini translates through the generateContent API.
type Gemini struct {
	cfg Config
	t   *transport
}

func NewGemini(cfg Config, opts ...Option) *Gemini {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &Gemini{cfg: cfg, t: newTransport("gemini", cfg, opts)}
}

func (g *Gemini) Model() string { return g.cfg.Model }

func (g *Gemini) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	input, err := encodeBatch(texts)
	if err != nil {
		return nil, err
	}
	content, err := g.generate(ctx, g.cfg.Languages.batchPrompt(len(texts)), input, true)
	if err != nil {
		return nil, err
	}
	out, err := decodeStringList(content)
	if err != nil {
		return nil, fmt.Errorf("gemini translate: %w", err)
	}
	if err := checkCount("gemini", len(out), len(texts)); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gemini) TranslateText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return g.generate(ctx, g.cfg.Languages.textPrompt(), text, false)
}

func (g *Gemini) generate(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if g.cfg.APIKey == "" {
		return "", errors.New("gemini translate: api key required")
	}
	payload := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: user}}}},
	}
	if jsonMode {
		payload.GenerationConfig = &geminiGenConfig{ResponseMimeType: "application/json"}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, url.PathEscape(g.cfg.Model))
	headers := map[string]string{"x-goog-api-key": g.cfg.APIKey}

	var resp geminiResponse
	if err := g.t.postJSON(ctx, endpoint, headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini translate: response contained no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", fmt.Errorf("gemini translate: empty content (finish_reason=%q)", resp.Candidates[0].FinishReason)
	}
	return content, nil
}
