package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override, e.g.
// SAFETALE_GENERATION_MODEL.
const EnvPrefix = "SAFETALE"

// Generation backends
const (
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
)

// Retrieval backends
const (
	RetrievalNone   = "none"
	RetrievalBluge  = "bluge"
	RetrievalQdrant = "qdrant"
)

// ServerConfig holds the HTTP/WebSocket listener settings
type ServerConfig struct {
	Addr            string   `json:"addr" envconfig:"ADDR" validate:"required"`
	MaxFrameBytes   int64    `json:"max_frame_bytes" envconfig:"MAX_FRAME_BYTES" validate:"gt=0"`
	MaxRequestBytes int64    `json:"max_request_bytes" envconfig:"MAX_REQUEST_BYTES" validate:"gt=0"`
	FanoutLimit     int      `json:"fanout_limit" envconfig:"FANOUT_LIMIT" validate:"gte=1"`
	AllowedOrigins  []string `json:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	// Profiling mounts net/http/pprof under /debug/pprof/.
	Profiling bool `json:"profiling,omitempty" envconfig:"PROFILING"`
}

// GenerationConfig selects and configures the text generation backend. An
// empty BaseURL selects the backend's default endpoint.
type GenerationConfig struct {
	Backend        string  `json:"backend" envconfig:"BACKEND" validate:"oneof=ollama openai anthropic gemini"`
	BaseURL        string  `json:"base_url,omitempty" envconfig:"BASE_URL" validate:"omitempty,url"`
	Model          string  `json:"model" envconfig:"MODEL" validate:"required"`
	APIKey         string  `json:"api_key,omitempty" envconfig:"API_KEY"`
	Temperature    float64 `json:"temperature" envconfig:"TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens      int     `json:"max_tokens,omitempty" envconfig:"MAX_TOKENS" validate:"gte=0"`
	TimeoutSeconds int     `json:"timeout_seconds" envconfig:"TIMEOUT_SECONDS" validate:"gte=0"`
}

// RetrievalConfig selects and configures the lore retrieval backend
type RetrievalConfig struct {
	Backend        string `json:"backend" envconfig:"BACKEND" validate:"oneof=none bluge qdrant"`
	IndexPath      string `json:"index_path,omitempty" envconfig:"INDEX_PATH" validate:"required_if=Backend bluge"`
	QdrantURL      string `json:"qdrant_url,omitempty" envconfig:"QDRANT_URL" validate:"required_if=Backend qdrant"`
	Collection     string `json:"collection" envconfig:"COLLECTION" validate:"required"`
	EmbedURL       string `json:"embed_url,omitempty" envconfig:"EMBED_URL"`
	EmbedModel     string `json:"embed_model" envconfig:"EMBED_MODEL"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"TIMEOUT_SECONDS" validate:"gte=0"`
}

// Config represents application configuration
type Config struct {
	Server         ServerConfig     `json:"server" envconfig:"SERVER"`
	Generation     GenerationConfig `json:"generation" envconfig:"GENERATION"`
	Retrieval      RetrievalConfig  `json:"retrieval" envconfig:"RETRIEVAL"`
	LogLevel       string           `json:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn warning error none off"`
	LogPath        string           `json:"log_path" envconfig:"LOG_PATH"`
	MetricsEnabled bool             `json:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "localhost:8000",
			MaxFrameBytes:   1024 * 1024,
			MaxRequestBytes: 256 * 1024,
			FanoutLimit:     16,
			AllowedOrigins:  []string{"*"},
		},
		Generation: GenerationConfig{
			Backend:        BackendOllama,
			Model:          "llama3.1:8b",
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
		Retrieval: RetrievalConfig{
			Backend:        RetrievalNone,
			IndexPath:      filepath.Join(defaultStateDir(), "lore.bluge"),
			QdrantURL:      "http://localhost:6333",
			Collection:     "safetale_lore",
			EmbedURL:       "http://localhost:11434",
			EmbedModel:     "nomic-embed-text",
			TimeoutSeconds: 10,
		},
		LogLevel:       "info",
		LogPath:        "stderr",
		MetricsEnabled: true,
	}
}

func defaultStateDir() string {
	if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
		return filepath.Join(stateHome, "safetale")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "safetale")
	}
	return filepath.Join(homeDir, ".local", "state", "safetale")
}

// GetConfigPath returns the config path, honouring SAFETALE_CONFIG.
func GetConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG")); p != "" {
		return p
	}
	return "safetale.json"
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables that are already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load layers defaults, the JSON file at path (if it exists) and SAFETALE_*
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Generation.Backend = strings.ToLower(strings.TrimSpace(c.Generation.Backend))
	c.Retrieval.Backend = strings.ToLower(strings.TrimSpace(c.Retrieval.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.Retrieval.Backend == "" {
		c.Retrieval.Backend = RetrievalNone
	}
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// GenerationTimeout returns the per-call generation budget, zero meaning none.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// RetrievalTimeout returns the per-call retrieval budget, zero meaning none.
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSeconds) * time.Second
}
