package agentloop

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config holds the tunable parameters of a Loop. Zero values are filled
// from DefaultConfig by NewLoop.
type Config struct {
	// MaxIterations caps the number of model calls per run.
	MaxIterations int `yaml:"max_iterations"`

	// ModelTimeoutMs bounds a single model completion.
	ModelTimeoutMs int `yaml:"model_timeout_ms"`

	// ToolTimeoutMs bounds a single tool invocation.
	ToolTimeoutMs int `yaml:"tool_timeout_ms"`

	// CommandTimeoutMs is the default timeout for execute_command;
	// CommandMaxTimeoutMs caps per-call overrides.
	CommandTimeoutMs    int `yaml:"command_timeout_ms"`
	CommandMaxTimeoutMs int `yaml:"command_max_timeout_ms"`

	// SystemPrompt is prepended to every run's conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// Models selects the model per query classification. Keys are
	// "INFORMATIONAL" and "ACTION"; a missing key falls back to
	// DefaultModel.
	Models       map[string]string `yaml:"models"`
	DefaultModel string            `yaml:"default_model"`

	// Loop detection over repeated identical tool calls.
	EnableLoopDetection bool `yaml:"enable_loop_detection"`
	LoopDetectionWindow int  `yaml:"loop_detection_window"`

	// Per-tool output limits; nil uses the built-in defaults.
	ToolOutputLimits map[string]int `yaml:"tool_output_limits"`
	ToolLineLimits   map[string]int `yaml:"tool_line_limits"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       10,
		ModelTimeoutMs:      120000,
		ToolTimeoutMs:       60000,
		CommandTimeoutMs:    30000,
		CommandMaxTimeoutMs: 300000,
		DefaultModel:        "gpt-4o",
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ModelTimeoutMs <= 0 {
		c.ModelTimeoutMs = d.ModelTimeoutMs
	}
	if c.ToolTimeoutMs <= 0 {
		c.ToolTimeoutMs = d.ToolTimeoutMs
	}
	if c.CommandTimeoutMs <= 0 {
		c.CommandTimeoutMs = d.CommandTimeoutMs
	}
	if c.CommandMaxTimeoutMs <= 0 {
		c.CommandMaxTimeoutMs = d.CommandMaxTimeoutMs
	}
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.LoopDetectionWindow <= 0 {
		c.LoopDetectionWindow = d.LoopDetectionWindow
	}
	return c
}

// ModelFor returns the model to use for a classification.
func (c Config) ModelFor(classification Classification) string {
	if m, ok := c.Models[string(classification)]; ok && m != "" {
		return m
	}
	return c.DefaultModel
}

// LoadConfig reads a YAML configuration file and fills unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}
