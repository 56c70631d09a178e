package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultOpenAIModel is the model the service translates with unless told otherwise.
	DefaultOpenAIModel = "gpt-4o"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAI translates through the chat completions API.
type OpenAI struct {
	cfg Config
	t   *transport
}

// NewOpenAI constructs an OpenAI translator.
func NewOpenAI(cfg Config, opts ...Option) *OpenAI {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAI{cfg: cfg, t: newTransport("openai", cfg, opts)}
}

// Model returns the chat model identifier.
func (o *OpenAI) Model() string { return o.cfg.Model }

// TranslateBatch asks for a JSON object {"result": [...]} with one entry per sentence.
func (o *OpenAI) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	input, err := encodeBatch(texts)
	if err != nil {
		return nil, err
	}
	content, err := o.complete(ctx, o.cfg.Languages.batchPrompt(len(texts)), input, true)
	if err != nil {
		return nil, err
	}
	out, err := decodeStringList(content)
	if err != nil {
		return nil, fmt.Errorf("openai translate: %w", err)
	}
	if err := checkCount("openai", len(out), len(texts)); err != nil {
		return nil, err
	}
	return out, nil
}

// TranslateText translates a full transcript as plain text.
func (o *OpenAI) TranslateText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return o.complete(ctx, o.cfg.Languages.textPrompt(), text, false)
}

func (o *OpenAI) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if o.cfg.APIKey == "" {
		return "", errors.New("openai translate: api key required")
	}
	payload := chatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatCompletionResponse
	headers := map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}
	if err := o.t.postJSON(ctx, o.cfg.BaseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai translate: response contained no choices")
	}
	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai translate: empty content (finish_reason=%q, refusal=%q)", choice.FinishReason, choice.Message.Refusal)
	}
	return content, nil
}
