package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Translator maps source-language text to the target language.
type Translator interface {
	// TranslateBatch returns one translation per input, in input order.
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
	TranslateText(ctx context.Context, text string) (string, error)
	Model() string
}

// Languages names the translation direction in plain English, e.g. "Hindi".
type Languages struct {
	Source string
	Target string
	// Instructions is appended to every system prompt.
	Instructions string
}

func (l Languages) batchPrompt(count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are given a JSON array of %d subtitle sentences in %s. ", count, l.Source)
	fmt.Fprintf(&b, "Translate every sentence into %s. ", l.Target)
	fmt.Fprintf(&b, "Return a JSON object with a single field \"result\" holding an array of exactly %d strings, ", count)
	b.WriteString("one translation per input sentence, in the same order. Never merge, split, drop or reorder sentences.")
	if extra := strings.TrimSpace(l.Instructions); extra != "" {
		b.WriteString(" ")
		b.WriteString(extra)
	}
	return b.String()
}

func (l Languages) textPrompt() string {
	prompt := fmt.Sprintf("Translate the given %s transcript into %s. Return only the translated transcript.", l.Source, l.Target)
	if extra := strings.TrimSpace(l.Instructions); extra != "" {
		prompt += " " + extra
	}
	return prompt
}

func encodeBatch(texts []string) (string, error) {
	data, err := json.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("encode sentences: %w", err)
	}
	return string(data), nil
}

// decodeStringList accepts {"result": [...]} or a bare JSON array, optionally
// wrapped in a markdown code fence.
func decodeStringList(content string) ([]string, error) {
	content = stripCodeFence(content)
	if content == "" {
		return nil, errors.New("empty content")
	}

	var wrapped struct {
		Result []string `json:"result"`
	}
	if strings.HasPrefix(content, "{") {
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("decode result object: %w", err)
		}
		if wrapped.Result == nil {
			return nil, errors.New("result field missing")
		}
		return wrapped.Result, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(content), &list); err != nil {
		return nil, fmt.Errorf("decode result array: %w", err)
	}
	return list, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		// Drop the info string, e.g. ```json.
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// Factory builds a translator for one model.
type Factory func() (Translator, error)

// Registry resolves model identifiers to translators. Translators are built
// lazily, once per model.
type Registry struct {
	defaultModel string

	mu        sync.Mutex
	factories map[string]Factory
	built     map[string]Translator
}

// NewRegistry returns an empty registry that falls back to defaultModel when a
// request names no model.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		defaultModel: strings.TrimSpace(defaultModel),
		factories:    make(map[string]Factory),
		built:        make(map[string]Translator),
	}
}

// Register binds model to factory, replacing any previous binding.
func (r *Registry) Register(model string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	model = strings.TrimSpace(model)
	r.factories[model] = factory
	delete(r.built, model)
}

// DefaultModel returns the model used when a request names none.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// ErrUnknownModel is returned for model identifiers with no registered factory.
var ErrUnknownModel = errors.New("unknown model")

// Lookup returns the translator for model, or for the default model when model
// is empty.
func (r *Registry) Lookup(model string) (Translator, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = r.defaultModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.built[model]; ok {
		return t, nil
	}
	factory, ok := r.factories[model]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownModel, model, strings.Join(r.modelsLocked(), ", "))
	}
	t, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build translator %s: %w", model, err)
	}
	r.built[model] = t
	return t, nil
}

// Models lists registered model identifiers in sorted order.
func (r *Registry) Models() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelsLocked()
}

func (r *Registry) modelsLocked() []string {
	models := make([]string, 0, len(r.factories))
	for m := range r.factories {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
