// Package config loads the YAML configuration file and fills defaults.
package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// FileLoader loads YAML configuration from ~/.shellpilot/config.yaml
// (overridable via SHELLPILOT_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing file is seeded with
// defaults; a present but unreadable or malformed file is an error, not
// silently replaced.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := defaultConfig()
			if err := writeDefault(path, cfg); err != nil {
				return domain.Config{}, err
			}
			return cfg, nil
		}
		return domain.Config{}, err
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, err
	}

	return hydrateDefaults(cfg), nil
}

// Path returns the file the loader reads, after overrides.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return l.overridePath
	}
	if custom := os.Getenv("SHELLPILOT_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(userHomeDir(), ".shellpilot", "config.yaml")
}

func ensureConfigDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func writeDefault(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func defaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Provider: domain.ProviderConfig{
			Name:         "heuristic",
			MaxTokens:    domain.DefaultMaxTokens,
			Timeout:      domain.Duration(domain.DefaultProviderTimeout),
			MaxRetries:   domain.DefaultMaxRetries,
			RetryBackoff: domain.Duration(domain.DefaultRetryBackoff),
		},
		Limits: domain.LimitSettings{
			MaxCommandLength: domain.DefaultMaxCommandLength,
			MaxOutputBytes:   domain.DefaultMaxOutputBytes,
			ContextEntries:   domain.DefaultContextEntries,
		},
		Execution: domain.ExecutionSettings{
			Shell:   "/bin/sh",
			Timeout: domain.Duration(domain.DefaultExecutionTimeout),
		},
		Confirmation: domain.ConfirmationConfig{
			Timeout: domain.Duration(domain.DefaultConfirmationTimeout),
		},
		Security: domain.SecuritySettings{
			RulesFile: filepath.Join(userHomeDir(), ".shellpilot", "rules.yaml"),
		},
	}
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "heuristic"
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = domain.DefaultMaxTokens
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = domain.Duration(domain.DefaultProviderTimeout)
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = domain.DefaultMaxRetries
	}
	if cfg.Provider.RetryBackoff == 0 {
		cfg.Provider.RetryBackoff = domain.Duration(domain.DefaultRetryBackoff)
	}
	if cfg.Limits.MaxCommandLength == 0 {
		cfg.Limits.MaxCommandLength = domain.DefaultMaxCommandLength
	}
	if cfg.Limits.MaxOutputBytes == 0 {
		cfg.Limits.MaxOutputBytes = domain.DefaultMaxOutputBytes
	}
	if cfg.Limits.ContextEntries == 0 {
		cfg.Limits.ContextEntries = domain.DefaultContextEntries
	}
	if cfg.Execution.Shell == "" {
		cfg.Execution.Shell = "/bin/sh"
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = domain.Duration(domain.DefaultExecutionTimeout)
	}
	if cfg.Confirmation.Timeout == 0 {
		cfg.Confirmation.Timeout = domain.Duration(domain.DefaultConfirmationTimeout)
	}
	return cfg
}

// Default returns the built-in configuration without touching the
// filesystem, used by the config diff command.
func Default() domain.Config {
	return defaultConfig()
}

func expandPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(userHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}

func userHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
