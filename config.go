package minder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	defaults "github.com/hollowlog/minder/default"
)

// Config represents the daemon configuration.
type Config struct {
	Version   int             `toml:"version" json:"version"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Gateway   GatewayConfig   `toml:"gateway" json:"gateway"`
	Embedding EmbeddingConfig `toml:"embedding" json:"embedding"`
}

// ServerConfig holds listener and dispatch settings.
type ServerConfig struct {
	// Listen is "unix://<path>" or "tcp://<host>:<port>". Empty means the
	// default Unix socket path is resolved at startup.
	Listen string `toml:"listen" json:"listen,omitempty"`
	// CommandTimeoutSeconds bounds a single model invocation.
	CommandTimeoutSeconds int `toml:"command_timeout_seconds" json:"command_timeout_seconds,omitempty"`
}

// GatewayConfig selects the model gateway backend.
type GatewayConfig struct {
	// APIType is "gemini" or "chat_completions".
	APIType string `toml:"api_type" json:"api_type"`
	// BaseURL is the endpoint for the chat_completions backend.
	BaseURL string `toml:"base_url" json:"base_url,omitempty"`
}

// EmbeddingConfig holds settings for related-exchange selection.
// An empty Model disables embedding-based selection entirely.
type EmbeddingConfig struct {
	Model      string `toml:"model" json:"model,omitempty"`
	MaxRelated int    `toml:"max_related" json:"max_related,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $MINDER_CONFIG_DIR > $XDG_CONFIG_HOME/minder > ~/.config/minder
func ConfigDir() string {
	if dir := os.Getenv("MINDER_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "minder")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "minder-config")
	}
	return filepath.Join(home, ".config", "minder")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// TodoPromptPath returns the path of the custom todo prompt template.
func TodoPromptPath() string {
	return filepath.Join(ConfigDir(), "todo_prompt.md")
}

// QueryPromptPath returns the path of the custom query prompt template.
func QueryPromptPath() string {
	return filepath.Join(ConfigDir(), "query_prompt.md")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("minder: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing fields
	defaults := DefaultConfig()
	if cfg.Server.CommandTimeoutSeconds == 0 {
		cfg.Server.CommandTimeoutSeconds = defaults.Server.CommandTimeoutSeconds
	}
	if cfg.Gateway.APIType == "" {
		cfg.Gateway.APIType = defaults.Gateway.APIType
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = defaults.Gateway.BaseURL
	}
	if cfg.Embedding.MaxRelated == 0 {
		cfg.Embedding.MaxRelated = defaults.Embedding.MaxRelated
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if cfg.Gateway.APIType == "chat_completions" && ResolveGatewayBaseURL(cfg) == "" {
		warnings = append(warnings, "api_type is chat_completions but base_url is not configured; model invocations will fail")
	}
	if cfg.Gateway.APIType != "" && cfg.Gateway.APIType != "gemini" && cfg.Gateway.APIType != "chat_completions" {
		warnings = append(warnings, "unknown api_type "+cfg.Gateway.APIType+"; expected gemini or chat_completions")
	}
	return warnings
}

// ResolveListen returns the listener address.
// Priority: $MINDER_LISTEN env > config value.
func ResolveListen(cfg *Config) string {
	if addr := os.Getenv("MINDER_LISTEN"); addr != "" {
		return addr
	}
	if cfg != nil {
		return cfg.Server.Listen
	}
	return ""
}

// DefaultSocketPath returns the socket path used when no listener address is
// configured. Priority: $MINDER_SOCKET > $XDG_RUNTIME_DIR/minder.sock >
// /tmp/minder-<uid>.sock.
func DefaultSocketPath() string {
	if path := os.Getenv("MINDER_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "minder.sock")
	}
	return fmt.Sprintf("/tmp/minder-%d.sock", os.Getuid())
}

// ResolveGatewayAPIType returns the gateway backend name.
// Priority: $MINDER_GATEWAY_API_TYPE env > config value.
func ResolveGatewayAPIType(cfg *Config) string {
	if t := os.Getenv("MINDER_GATEWAY_API_TYPE"); t != "" {
		return t
	}
	if cfg != nil {
		return cfg.Gateway.APIType
	}
	return ""
}

// ResolveGatewayBaseURL returns the chat_completions endpoint.
// Priority: $MINDER_GATEWAY_BASE_URL env > config value.
func ResolveGatewayBaseURL(cfg *Config) string {
	if url := os.Getenv("MINDER_GATEWAY_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Gateway.BaseURL
	}
	return ""
}

// ResolveEmbeddingModel returns the embedding model name.
// Priority: $MINDER_EMBEDDING_MODEL env > config value.
func ResolveEmbeddingModel(cfg *Config) string {
	if model := os.Getenv("MINDER_EMBEDDING_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Embedding.Model
	}
	return ""
}

// EmbeddingEnabled returns true when an embedding model is configured.
func EmbeddingEnabled(cfg *Config) bool {
	return ResolveEmbeddingModel(cfg) != ""
}
