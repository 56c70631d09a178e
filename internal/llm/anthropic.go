package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	DefaultAnthropicModel   = "claude-3-5-sonnet-latest"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 8192
)

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Anthropic translates through the messages API. The model has no JSON mode,
// so batch replies are decoded from the text block.
type Anthropic struct {
	cfg Config
	t   *transport
}

func NewAnthropic(cfg Config, opts ...Option) *Anthropic {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	return &Anthropic{cfg: cfg, t: newTransport("anthropic", cfg, opts)}
}

func (a *Anthropic) Model() string { return a.cfg.Model }

func (a *Anthropic) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	input, err := encodeBatch(texts)
	if err != nil {
		return nil, err
	}
	system := a.cfg.Languages.batchPrompt(len(texts)) + " Reply with the JSON object only."
	content, err := a.message(ctx, system, input)
	if err != nil {
		return nil, err
	}
	out, err := decodeStringList(content)
	if err != nil {
		return nil, fmt.Errorf("anthropic translate: %w", err)
	}
	if err := checkCount("anthropic", len(out), len(texts)); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Anthropic) TranslateText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return a.message(ctx, a.cfg.Languages.textPrompt(), text)
}

func (a *Anthropic) message(ctx context.Context, system, user string) (string, error) {
	if a.cfg.APIKey == "" {
		return "", errors.New("anthropic translate: api key required")
	}
	payload := anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: user}},
	}
	headers := map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := a.t.postJSON(ctx, a.cfg.BaseURL+"/messages", headers, payload, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", fmt.Errorf("anthropic translate: empty content (stop_reason=%q)", resp.StopReason)
	}
	return content, nil
}
