package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AssemblyAI holds transcription provider settings.
type AssemblyAI struct {
	APIKey            string `toml:"api_key" yaml:"api_key"`
	BaseURL           string `toml:"base_url" yaml:"base_url"`
	LanguageCode      string `toml:"language_code" yaml:"language_code"`
	RequestsPerMinute int    `toml:"requests_per_minute" yaml:"requests_per_minute"`
}

// Translation holds settings shared by every translation provider.
type Translation struct {
	DefaultModel      string `toml:"default_model" yaml:"default_model"`
	SourceLanguage    string `toml:"source_language" yaml:"source_language"`
	TargetLanguage    string `toml:"target_language" yaml:"target_language"`
	Instructions      string `toml:"instructions" yaml:"instructions"`
	SplitSentencesAt  int    `toml:"split_sentences_at" yaml:"split_sentences_at"`
	RequestsPerMinute int    `toml:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Provider holds connection settings for one LLM vendor.
type Provider struct {
	APIKey  string `toml:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" yaml:"base_url"`
	Model   string `toml:"model" yaml:"model"`
}

// Store selects where synthesized SRT files are kept.
type Store struct {
	// Backend is "drive" or "sqlite".
	Backend         string `toml:"backend" yaml:"backend"`
	SQLitePath      string `toml:"sqlite_path" yaml:"sqlite_path"`
	DriveFolderID   string `toml:"drive_folder_id" yaml:"drive_folder_id"`
	CredentialsFile string `toml:"credentials_file" yaml:"credentials_file"`
	// CredentialsJSON is the inline service account key. It takes precedence
	// over CredentialsFile.
	CredentialsJSON string `toml:"credentials_json" yaml:"credentials_json"`
}

// Server holds HTTP API settings.
type Server struct {
	Bind       string `toml:"bind" yaml:"bind"`
	StagingDir string `toml:"staging_dir" yaml:"staging_dir"`
}

// Queue holds RabbitMQ settings for background jobs.
type Queue struct {
	URL           string `toml:"url" yaml:"url"`
	JobQueue      string `toml:"job_queue" yaml:"job_queue"`
	ResultQueue   string `toml:"result_queue" yaml:"result_queue"`
	MaxConcurrent int    `toml:"max_concurrent" yaml:"max_concurrent"`
	JobsPerMinute int    `toml:"jobs_per_minute" yaml:"jobs_per_minute"`
}

// Config holds the full application configuration.
type Config struct {
	AssemblyAI  AssemblyAI  `toml:"assemblyai" yaml:"assemblyai"`
	Translation Translation `toml:"translation" yaml:"translation"`
	OpenAI      Provider    `toml:"openai" yaml:"openai"`
	Gemini      Provider    `toml:"gemini" yaml:"gemini"`
	Anthropic   Provider    `toml:"anthropic" yaml:"anthropic"`
	Store       Store       `toml:"store" yaml:"store"`
	Server      Server      `toml:"server" yaml:"server"`
	Queue       Queue       `toml:"queue" yaml:"queue"`
}

// Store backends.
const (
	BackendDrive  = "drive"
	BackendSQLite = "sqlite"
)

// Default returns a Config with hardcoded defaults.
func Default() *Config {
	return &Config{
		AssemblyAI: AssemblyAI{
			BaseURL:           "https://api.assemblyai.com",
			LanguageCode:      "hi",
			RequestsPerMinute: 60,
		},
		Translation: Translation{
			DefaultModel:      "gpt-4o",
			SourceLanguage:    "hi",
			TargetLanguage:    "en",
			Instructions:      "Skip any quotations in Sanskrit.",
			SplitSentencesAt:  80,
			RequestsPerMinute: 30,
			TimeoutSeconds:    300,
		},
		OpenAI:    Provider{Model: "gpt-4o"},
		Gemini:    Provider{Model: "gemini-2.0-flash-exp"},
		Anthropic: Provider{Model: "claude-3-5-sonnet-latest"},
		Store: Store{
			Backend:    BackendSQLite,
			SQLitePath: "~/.local/share/speech-to-text/files.db",
		},
		Server: Server{
			Bind:       "127.0.0.1:8080",
			StagingDir: filepath.Join(os.TempDir(), "speech-to-text"),
		},
		Queue: Queue{
			JobQueue:      "translation_jobs",
			ResultQueue:   "translation_results",
			MaxConcurrent: 2,
			JobsPerMinute: 30,
		},
	}
}

// Load reads path (TOML, or YAML for .yaml/.yml), applies environment
// overrides and validates the result. An empty path, or one that does not
// exist, yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(expanded)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(expanded, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.AssemblyAI.APIKey, "ASSEMBLYAI_API_KEY")
	set(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Gemini.APIKey, "GEMINI_API_KEY")
	set(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	set(&c.Store.CredentialsJSON, "GOOGLE_DRIVE_SERVICE_ACCOUNT_CREDENTIALS")
	set(&c.Store.DriveFolderID, "GOOGLE_DRIVE_SRT_FOLDER_ID")
	set(&c.Queue.URL, "RABBITMQ_URL")
}

func (c *Config) normalize() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Translation.DefaultModel = strings.TrimSpace(c.Translation.DefaultModel)

	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.CredentialsFile, err = expandPath(c.Store.CredentialsFile); err != nil {
		return fmt.Errorf("store.credentials_file: %w", err)
	}
	if c.Server.StagingDir, err = expandPath(c.Server.StagingDir); err != nil {
		return fmt.Errorf("server.staging_dir: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Translation.SplitSentencesAt <= 0 {
		return fmt.Errorf("translation.split_sentences_at must be positive, got %d", c.Translation.SplitSentencesAt)
	}
	if c.Translation.DefaultModel == "" {
		return errors.New("translation.default_model must be set")
	}
	for key, code := range map[string]string{
		"assemblyai.language_code":    c.AssemblyAI.LanguageCode,
		"translation.source_language": c.Translation.SourceLanguage,
		"translation.target_language": c.Translation.TargetLanguage,
	} {
		if _, err := ParseLanguage(code); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set for the sqlite backend")
		}
	case BackendDrive:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendDrive, BackendSQLite, c.Store.Backend)
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue.max_concurrent must be positive, got %d", c.Queue.MaxConcurrent)
	}
	return nil
}

// DriveCredentials returns the service account key, reading CredentialsFile
// when no inline key is set.
func (c *Config) DriveCredentials() ([]byte, error) {
	if strings.TrimSpace(c.Store.CredentialsJSON) != "" {
		return []byte(c.Store.CredentialsJSON), nil
	}
	if c.Store.CredentialsFile == "" {
		return nil, errors.New("google drive credentials not configured (set GOOGLE_DRIVE_SERVICE_ACCOUNT_CREDENTIALS or store.credentials_file)")
	}
	data, err := os.ReadFile(c.Store.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	return data, nil
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	path, err := expandPath("~/.config/speech-to-text/config.toml")
	if err != nil {
		return ""
	}
	return path
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
