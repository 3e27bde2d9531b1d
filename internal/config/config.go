// Package config loads and manages vesselcheck configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/vesselcheck/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// Provider names with a native (non OpenAI-compatible) client.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// configDir returns ~/.config/vesselcheck.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vesselcheck"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := configDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/vesselcheck/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := configDir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	return mergeProviderDefaults(defs, data)
}

func mergeProviderDefaults(defs map[string]ProviderDefaults, data []byte) map[string]ProviderDefaults {
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// MemoryConfig tunes the in-process session memory.
type MemoryConfig struct {
	// Retention is how long a session survives without new turns.
	Retention time.Duration `yaml:"retention"`

	// SweepInterval enables a background eviction sweep. 0 = evict on append only.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LogConfig selects the log level and destination.
type LogConfig struct {
	// Level: "debug" | "info" | "warn" | "error"
	Level string `yaml:"level"`

	// File receives JSON logs. Empty = console output on stderr.
	File string `yaml:"file"`
}

// Config is the complete configuration structure for vesselcheck.
type Config struct {
	// Provider is the active provider name (e.g. "openai", "anthropic", "gemini")
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// DBPath is the SQLite checklist database. Empty = ~/.local/share/vesselcheck/checklist.db
	DBPath string `yaml:"db_path"`

	// ListenAddr is the HTTP listen address for `serve`.
	ListenAddr string `yaml:"listen_addr"`

	// ModelTimeout bounds a single model call.
	ModelTimeout time.Duration `yaml:"model_timeout"`

	// HistoryWindow is how many recent turns are sent to the model.
	HistoryWindow int `yaml:"history_window"`

	// MaxTokens caps the model reply. 0 = provider default.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPromptFile replaces the built-in policy template.
	SystemPromptFile string `yaml:"system_prompt_file"`

	Memory MemoryConfig `yaml:"memory"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:      "openai",
		Providers:     make(map[string]*ProviderConfig),
		ListenAddr:    ":8080",
		ModelTimeout:  30 * time.Second,
		HistoryWindow: 10,
		Memory: MemoryConfig{
			Retention: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ResolveModel picks the model for the active provider: global override,
// then the provider entry, then the built-in default.
func (c *Config) ResolveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if pc := c.GetProviderConfig(c.Provider); pc.Model != "" {
		return pc.Model
	}
	return KnownProviderModels[c.Provider]
}

// ResolveBaseURL returns the configured base URL for the active provider,
// falling back to the built-in endpoint. Empty for native providers with no
// override.
func (c *Config) ResolveBaseURL() string {
	if pc := c.GetProviderConfig(c.Provider); pc.BaseURL != "" {
		return pc.BaseURL
	}
	return KnownProviderBaseURLs[c.Provider]
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// SaveProviderToFile persists a single provider's config and the active provider
// name into the config file at path (DefaultPath when empty), preserving all
// other user settings.
func SaveProviderToFile(path, providerName string, pc ProviderConfig) error {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return fmt.Errorf("cannot determine home directory")
		}
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	entry := map[string]any{
		"api_key": pc.APIKey,
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic keys land on the right entry.
	if v := os.Getenv("VESSELCHECK_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("VESSELCHECK_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry(ProviderAnthropic).APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.providerEntry(ProviderGemini).APIKey = v
	}

	if v := os.Getenv("VESSELCHECK_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VESSELCHECK_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
}
