// Package config loads the layered YAML configuration and environment
// overrides. Precedence, lowest to highest: built-in defaults, the user
// config in ~/.askterm, the project config in ./.askterm, then environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
)

// FilesystemAccess restricts what the filesystem tools may see and touch.
// Patterns are doublestar globs relative to the working directory.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type Config struct {
	Provider string `yaml:"llm"`
	Model    string `yaml:"model"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`

	OllamaBaseURL   string `yaml:"ollama_base_url"`
	OllamaKeepAlive int    `yaml:"ollama_keep_alive"` // minutes

	SearxBaseURL string `yaml:"searxng_base_url"`
	Debug        bool   `yaml:"debug"`

	// AllowedCommands are regex patterns for commands that skip the
	// interactive approval prompt even when classified as risky.
	AllowedCommands []string `yaml:"allowed_commands"`

	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-sonnet-4-5-20250929",
	"gemini":    "gemini-1.5-flash",
	"bedrock":   "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"ollama":    "llama3.1:latest",
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence, then applies
// environment overrides.
func LoadConfig() (*Config, error) {
	cfg := &Config{Provider: "openai"}

	// The tool's own directory stays invisible to the filesystem tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".askterm", ".askterm/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".askterm", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".askterm", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, which gives a
	// simple field-level merge across the config layers.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	setString(&c.Provider, "ASKTERM_LLM_PROVIDER")
	setString(&c.OpenAIAPIKey, "ASKTERM_OPENAI_API_KEY")
	setString(&c.OpenAIBaseURL, "ASKTERM_OPENAI_BASE_URL")
	setString(&c.AnthropicAPIKey, "ASKTERM_ANTHROPIC_API_KEY")
	setString(&c.GeminiAPIKey, "ASKTERM_GEMINI_API_KEY")
	setString(&c.OllamaBaseURL, "ASKTERM_OLLAMA_BASE_URL")
	setString(&c.SearxBaseURL, "SEARXNG_BASE_URL")

	// The model override is scoped to the active provider, so switching
	// providers never drags a foreign model name along.
	setString(&c.Model, "ASKTERM_"+strings.ToUpper(c.Provider)+"_MODEL")

	if v := os.Getenv("ASKTERM_OLLAMA_KEEP_ALIVE"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil {
			c.OllamaKeepAlive = minutes
		}
	}
	if v := os.Getenv("ASKTERM_DEBUG"); v != "" && v != "0" && v != "false" {
		c.Debug = true
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// LLM resolves the provider selection into an llm.Config, filling in the
// provider's default model and checking that its credentials are present.
func (c *Config) LLM() (llm.Config, error) {
	model := c.Model
	if model == "" {
		model = defaultModels[c.Provider]
	}

	out := llm.Config{
		Provider: c.Provider,
		Model:    model,
	}

	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return out, &llm.ConfigError{Reason: "openai selected but ASKTERM_OPENAI_API_KEY is not set"}
		}
		out.APIKey = c.OpenAIAPIKey
		out.BaseURL = c.OpenAIBaseURL
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return out, &llm.ConfigError{Reason: "anthropic selected but ASKTERM_ANTHROPIC_API_KEY is not set"}
		}
		out.APIKey = c.AnthropicAPIKey
	case "gemini":
		if c.GeminiAPIKey == "" {
			return out, &llm.ConfigError{Reason: "gemini selected but ASKTERM_GEMINI_API_KEY is not set"}
		}
		out.APIKey = c.GeminiAPIKey
	case "ollama":
		out.BaseURL = c.OllamaBaseURL
		out.KeepAliveMinutes = c.OllamaKeepAlive
	case "bedrock":
		// Credentials come from the AWS SDK's default chain.
	default:
		return out, &llm.ConfigError{Reason: "unknown provider " + strconv.Quote(c.Provider)}
	}

	return out, nil
}
