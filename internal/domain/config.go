package domain

import "time"

// Built-in limits used when the config file leaves a field unset.
const (
	DefaultMaxCommandLength    = 4096
	DefaultMaxOutputBytes      = 256 * 1024
	DefaultContextEntries      = 10
	DefaultExecutionTimeout    = 2 * time.Minute
	DefaultConfirmationTimeout = 2 * time.Minute
	DefaultProviderTimeout     = 60 * time.Second
	DefaultMaxRetries          = 2
	DefaultRetryBackoff        = 500 * time.Millisecond
	DefaultMaxTokens           = 1024
	DefaultStepRetries         = 2
)

// Config is the root configuration loaded from ~/.shellpilot/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Provider            ProviderConfig     `yaml:"provider"`
	Limits              LimitSettings      `yaml:"limits"`
	Execution           ExecutionSettings  `yaml:"execution"`
	Confirmation        ConfirmationConfig `yaml:"confirmation"`
	Security            SecuritySettings   `yaml:"security"`
}

// ProviderConfig selects and tunes the LLM backend. Name is a configuration
// value, not a runtime type check: the factory maps it to a variant.
type ProviderConfig struct {
	Name         string   `yaml:"name"`
	ModelID      string   `yaml:"model_id"`
	Endpoint     string   `yaml:"endpoint"`
	AuthEnvVar   string   `yaml:"auth_env_var"`
	MaxTokens    int      `yaml:"max_tokens"`
	Timeout      Duration `yaml:"timeout"`
	MaxRetries   int      `yaml:"max_retries"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// LimitSettings bound proposal size, captured output, and prompt context.
type LimitSettings struct {
	MaxCommandLength int `yaml:"max_command_length"`
	MaxOutputBytes   int `yaml:"max_output_bytes"`
	ContextEntries   int `yaml:"context_entries"`
}

// ExecutionSettings tune the subprocess runner.
type ExecutionSettings struct {
	Shell   string   `yaml:"shell"`
	Timeout Duration `yaml:"timeout"`
}

// ConfirmationConfig bounds how long the gate waits for an operator
// decision before rejecting.
type ConfirmationConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// SecuritySettings point at the external risk rule tables.
type SecuritySettings struct {
	RulesFile string `yaml:"rules_file"`
}
