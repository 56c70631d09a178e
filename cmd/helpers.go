package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/PranayPant/speech-to-text/internal/api"
	"github.com/PranayPant/speech-to-text/internal/config"
	"github.com/PranayPant/speech-to-text/internal/drive"
	"github.com/PranayPant/speech-to-text/internal/llm"
	"github.com/PranayPant/speech-to-text/internal/worker"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newTranscriptClient(c *config.Config) (*api.Client, error) {
	if c.AssemblyAI.APIKey == "" {
		return nil, errors.New("ASSEMBLYAI_API_KEY not set (env or assemblyai.api_key)")
	}
	return api.NewClient(c.AssemblyAI.APIKey,
		api.WithBaseURL(c.AssemblyAI.BaseURL),
		api.WithLanguageCode(c.AssemblyAI.LanguageCode),
		api.WithRateLimit(c.AssemblyAI.RequestsPerMinute),
	), nil
}

// newRegistry registers one translator per configured provider model. Missing
// API keys surface when a model is first used, so a server can run with only
// one provider configured.
func newRegistry(c *config.Config) *llm.Registry {
	langs := llm.Languages{
		Source:       config.LanguageName(c.Translation.SourceLanguage),
		Target:       config.LanguageName(c.Translation.TargetLanguage),
		Instructions: c.Translation.Instructions,
	}
	llmConfig := func(p config.Provider) llm.Config {
		return llm.Config{
			APIKey:            p.APIKey,
			BaseURL:           p.BaseURL,
			Model:             p.Model,
			TimeoutSeconds:    c.Translation.TimeoutSeconds,
			RequestsPerMinute: c.Translation.RequestsPerMinute,
			Languages:         langs,
		}
	}
	requireKey := func(name, envVar string, p config.Provider, build func(llm.Config) llm.Translator) llm.Factory {
		return func() (llm.Translator, error) {
			if p.APIKey == "" {
				return nil, fmt.Errorf("%s not set (env or %s.api_key)", envVar, name)
			}
			return build(llmConfig(p)), nil
		}
	}

	reg := llm.NewRegistry(c.Translation.DefaultModel)
	providers := []struct {
		name, env string
		cfg       config.Provider
		build     func(llm.Config) llm.Translator
	}{
		{"openai", "OPENAI_API_KEY", c.OpenAI, func(lc llm.Config) llm.Translator { return llm.NewOpenAI(lc) }},
		{"gemini", "GEMINI_API_KEY", c.Gemini, func(lc llm.Config) llm.Translator { return llm.NewGemini(lc) }},
		{"anthropic", "ANTHROPIC_API_KEY", c.Anthropic, func(lc llm.Config) llm.Translator { return llm.NewAnthropic(lc) }},
	}
	for _, p := range providers {
		if p.cfg.Model == "" {
			continue
		}
		reg.Register(p.cfg.Model, requireKey(p.name, p.env, p.cfg, p.build))
	}
	return reg
}

// openStore opens the configured file store. The returned close function is
// never nil.
func openStore(ctx context.Context, c *config.Config) (drive.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Store.Backend {
	case config.BackendDrive:
		creds, err := c.DriveCredentials()
		if err != nil {
			return nil, noop, err
		}
		store, err := drive.NewGoogleStore(ctx, creds, c.Store.DriveFolderID)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		store, err := drive.OpenSQLite(c.Store.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	}
}

// newPipeline wires the transcription client and translators.
func newPipeline(c *config.Config) (*api.Client, *worker.Pipeline, error) {
	client, err := newTranscriptClient(c)
	if err != nil {
		return nil, nil, err
	}
	return client, worker.New(client, newRegistry(c)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
