// Package config loads and validates agentflow configuration.
// Config lives at .agentflow/config.json in the workspace; environment
// variables override file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all agentflow configuration.
type Config struct {
	// Directory where generated documents are written
	DocumentsDir string `json:"documents_dir"`

	// Root directory for persisted workflows
	StoreRoot string `json:"store_root"`

	// Maximum tasks running concurrently (default 1)
	MaxParallelTasks int `json:"max_parallel_tasks"`

	// Per-task execution timeout in seconds
	TaskTimeoutSeconds int `json:"task_timeout_seconds"`

	// Model used for LLM completions
	DefaultModel string `json:"default_model"`

	// Optional YAML file overriding the classifier signal tables
	SignalsFile string `json:"signals_file,omitempty"`

	// API key for the Gemini backend; usually set via GEMINI_API_KEY
	APIKey string `json:"api_key,omitempty"`

	Logging LoggingConfig `json:"logging"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"` // debug, info, warn, error
	Categories map[string]bool `json:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DocumentsDir:       "./documents",
		StoreRoot:          "./.agentflow/workflows",
		MaxParallelTasks:   1,
		TaskTimeoutSeconds: 300,
		DefaultModel:       "gemini-3-flash-preview",
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// DefaultPath returns the config path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".agentflow", "config.json")
}

// Load reads the config from path, falling back to defaults when the file
// does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.APIKey = key
	}
	if dir := os.Getenv("AGENTFLOW_DOCUMENTS_DIR"); dir != "" {
		c.DocumentsDir = dir
	}
	if root := os.Getenv("AGENTFLOW_STORE_ROOT"); root != "" {
		c.StoreRoot = root
	}
	if model := os.Getenv("AGENTFLOW_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if v := os.Getenv("AGENTFLOW_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxParallelTasks = n
		}
	}
	if v := os.Getenv("AGENTFLOW_TASK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TaskTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AGENTFLOW_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// TaskTimeout returns the per-task timeout as a duration.
func (c *Config) TaskTimeout() time.Duration {
	if c.TaskTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// Validate checks config consistency.
func (c *Config) Validate() error {
	if c.DocumentsDir == "" {
		return fmt.Errorf("documents_dir is required")
	}
	if c.StoreRoot == "" {
		return fmt.Errorf("store_root is required")
	}
	if c.MaxParallelTasks < 1 {
		return fmt.Errorf("max_parallel_tasks must be >= 1, got %d", c.MaxParallelTasks)
	}
	if c.TaskTimeoutSeconds < 1 {
		return fmt.Errorf("task_timeout_seconds must be >= 1, got %d", c.TaskTimeoutSeconds)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	return nil
}
