package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks the structural settings a server or REPL needs before it
// starts. Provider credentials are checked separately when the provider is built.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("provider", c.Provider, notEmpty),
		criterio.Run("listen_addr", c.ListenAddr, isListenAddr),
		criterio.Run("system_prompt_file", c.SystemPromptFile, isFileOrEmpty),
		criterio.Run("log.level", c.Log.Level, isLogLevel),
		c.validateLimits(),
		c.validateProviders(),
	)
}

func (c *Config) validateLimits() error {
	var errs criterio.FieldErrorsBuilder
	if c.ModelTimeout <= 0 {
		errs = errs.Append("model_timeout", fmt.Errorf("must be positive, got %s", c.ModelTimeout))
	}
	if c.HistoryWindow <= 0 {
		errs = errs.Append("history_window", fmt.Errorf("must be positive, got %d", c.HistoryWindow))
	}
	if c.MaxTokens < 0 {
		errs = errs.Append("max_tokens", fmt.Errorf("must not be negative, got %d", c.MaxTokens))
	}
	if c.Memory.Retention <= 0 {
		errs = errs.Append("memory.retention", fmt.Errorf("must be positive, got %s", c.Memory.Retention))
	}
	if c.Memory.SweepInterval < 0 {
		errs = errs.Append("memory.sweep_interval", fmt.Errorf("must not be negative, got %s", c.Memory.SweepInterval))
	}
	return errs.ToError()
}

// validateProviders requires a base URL for OpenAI-compatible providers
// that have no built-in endpoint.
func (c *Config) validateProviders() error {
	var errs criterio.FieldErrorsBuilder
	for name, pc := range c.Providers {
		if pc == nil || pc.BaseURL != "" || name == ProviderAnthropic || name == ProviderGemini {
			continue
		}
		if _, ok := KnownProviderBaseURLs[name]; !ok {
			errs = errs.Append(fmt.Sprintf("providers[%q].base_url", name), fmt.Errorf("required for unknown provider %q", name))
		}
	}
	return errs.ToError()
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func isListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("must not be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

func isFileOrEmpty(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	return nil
}

func isLogLevel(level string) error {
	for _, l := range logLevels {
		if strings.EqualFold(level, l) {
			return nil
		}
	}
	return fmt.Errorf("unknown level %q (want one of %s)", level, strings.Join(logLevels, ", "))
}
