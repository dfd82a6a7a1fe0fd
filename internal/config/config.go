package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel              = "gpt-4o"
	DefaultCritiqueModel      = "claude-opus-4-1-20250805"
	DefaultImageModel         = "dall-e-3"
	DefaultImageFallbackModel = "gpt-4o"
	DefaultMaxTokens          = 500
	DefaultPort               = 8080
)

// DefaultImageCapableModels lists OpenAI chat models that accept image parts.
var DefaultImageCapableModels = []string{
	"gpt-5",
	"gpt-5-mini",
	"gpt-5-nano",
	"gpt-4o",
	"gpt-4.1",
}

// DefaultCatalog maps model ids offered to users onto display names.
var DefaultCatalog = map[string]string{
	"gpt-5":                    "GPT-5",
	"gpt-5-mini":               "GPT-5 Mini",
	"gpt-5-nano":               "GPT-5 Nano",
	"gpt-4o":                   "GPT-4o",
	"gpt-4.1":                  "GPT-4.1",
	"claude-opus-4-1-20250805": "Claude Opus 4.1",
	"claude-sonnet-4-20250514": "Claude Sonnet 4",
	"gemini-2.5-pro":           "Gemini 2.5 Pro",
	"gemini-2.5-flash":         "Gemini 2.5 Flash",
}

var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProvidersConfig holds one credential block per backend family.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Groq      ProviderConfig `yaml:"groq"`
}

// ProviderConfig captures authentication and endpoint info for a backend.
type ProviderConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Headers Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// AssistantConfig holds the user-facing assistant settings.
type AssistantConfig struct {
	Model              string            `yaml:"model"`
	CritiqueModel      string            `yaml:"critique_model"`
	ImageModel         string            `yaml:"image_model"`
	MaxTokens          int               `yaml:"max_tokens"`
	ReplaceSelection   *bool             `yaml:"replace_selection"`
	Language           string            `yaml:"language"`
	ImageCapableModels []string          `yaml:"image_capable_models"`
	ImageFallbackModel string            `yaml:"image_fallback_model"`
	Models             map[string]string `yaml:"models"`
}

// Default returns a configuration populated with built-in defaults.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML configuration from disk, applies defaults and environment
// credentials, then validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes into a validated configuration.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	a := &c.Assistant
	if a.Model == "" {
		a.Model = DefaultModel
	}
	if a.CritiqueModel == "" {
		a.CritiqueModel = DefaultCritiqueModel
	}
	if a.ImageModel == "" {
		a.ImageModel = DefaultImageModel
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.ReplaceSelection == nil {
		replace := true
		a.ReplaceSelection = &replace
	}
	if len(a.ImageCapableModels) == 0 {
		a.ImageCapableModels = slices.Clone(DefaultImageCapableModels)
	}
	if a.ImageFallbackModel == "" {
		a.ImageFallbackModel = DefaultImageFallbackModel
	}
	if len(a.Models) == 0 {
		a.Models = maps.Clone(DefaultCatalog)
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, p := range c.Providers.byName() {
		if strings.TrimSpace(p.APIKey) != "" {
			continue
		}
		if v, ok := lookup(apiKeyEnv[name]); ok {
			p.APIKey = strings.TrimSpace(v)
		}
	}
}

func (p *ProvidersConfig) byName() map[string]*ProviderConfig {
	return map[string]*ProviderConfig{
		"openai":    &p.OpenAI,
		"anthropic": &p.Anthropic,
		"gemini":    &p.Gemini,
		"groq":      &p.Groq,
	}
}

// Validate performs strict sanity checks on the configuration. Missing API
// keys are not an error here; they surface as auth errors on first use.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Assistant.MaxTokens <= 0 {
		return fmt.Errorf("assistant.max_tokens must be positive, got %d", c.Assistant.MaxTokens)
	}
	if strings.TrimSpace(c.Assistant.Model) == "" {
		return fmt.Errorf("assistant.model must not be empty")
	}

	for name, provider := range c.Providers.byName() {
		if err := validateProvider(name, *provider); err != nil {
			return err
		}
	}

	for id := range c.Assistant.Models {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("assistant.models: model id must not be empty")
		}
	}
	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
