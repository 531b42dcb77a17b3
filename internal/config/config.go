package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig represents execution history configuration
type HistoryConfig struct {
	// Enabled enables recording of task attempts to the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history SQLite database
	DBPath string `yaml:"db_path"`

	// KeepAttemptsDays is the number of days to keep attempt history
	KeepAttemptsDays int `yaml:"keep_attempts_days"`
}

// Config represents taskforge configuration options
type Config struct {
	// ExecTimeout is the maximum execution time for a single task script
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	// MaxAttempts is the number of times a task may be executed before the
	// engine marks it failed
	MaxAttempts int `yaml:"max_attempts"`

	// AutoApprove approves all sandbox write requests without prompting
	AutoApprove bool `yaml:"auto_approve"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// ProjectDir is the working directory task scripts run in
	ProjectDir string `yaml:"project_dir"`

	// StorePath is the path to the persisted task list
	StorePath string `yaml:"store_path"`

	// History contains execution history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ExecTimeout: 5 * time.Minute,
		MaxAttempts: 3,
		AutoApprove: false,
		LogLevel:    "info",
		LogDir:      filepath.Join(".taskforge", "logs"),
		ProjectDir:  ".",
		StorePath:   filepath.Join(".taskforge", "todos.json"),
		History: HistoryConfig{
			Enabled:          true,
			DBPath:           filepath.Join(".taskforge", "history.db"),
			KeepAttemptsDays: 90,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations arrive as strings ("5m", "90s"), so unmarshal through a
	// temporary struct before merging onto the defaults.
	type yamlConfig struct {
		ExecTimeout string        `yaml:"exec_timeout"`
		MaxAttempts int           `yaml:"max_attempts"`
		AutoApprove bool          `yaml:"auto_approve"`
		LogLevel    string        `yaml:"log_level"`
		LogDir      string        `yaml:"log_dir"`
		ProjectDir  string        `yaml:"project_dir"`
		StorePath   string        `yaml:"store_path"`
		History     HistoryConfig `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.ExecTimeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.ExecTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid exec_timeout format %q: %w", yamlCfg.ExecTimeout, err)
		}
		cfg.ExecTimeout = timeout
	}
	if yamlCfg.MaxAttempts != 0 {
		cfg.MaxAttempts = yamlCfg.MaxAttempts
	}
	if yamlCfg.AutoApprove {
		cfg.AutoApprove = yamlCfg.AutoApprove
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.ProjectDir != "" {
		cfg.ProjectDir = yamlCfg.ProjectDir
	}
	if yamlCfg.StorePath != "" {
		cfg.StorePath = yamlCfg.StorePath
	}

	// The history section merges field-by-field so a partial section keeps
	// the remaining defaults. A second raw unmarshal detects which keys the
	// file actually set.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if historySection, exists := rawMap["history"]; exists && historySection != nil {
			history := yamlCfg.History
			historyMap, _ := historySection.(map[string]interface{})

			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = history.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = history.DBPath
			}
			if _, exists := historyMap["keep_attempts_days"]; exists {
				cfg.History.KeepAttemptsDays = history.KeepAttemptsDays
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .taskforge/config.yaml in the
// specified directory. If the directory or file doesn't exist, returns
// default configuration without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".taskforge", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values, letting CLI flags take
// precedence over config file settings.
func (c *Config) MergeWithFlags(execTimeout *time.Duration, maxAttempts *int, autoApprove *bool, logDir *string, projectDir *string) {
	if execTimeout != nil {
		c.ExecTimeout = *execTimeout
	}
	if maxAttempts != nil {
		c.MaxAttempts = *maxAttempts
	}
	if autoApprove != nil {
		c.AutoApprove = *autoApprove
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if projectDir != nil {
		c.ProjectDir = *projectDir
	}
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("exec_timeout must be > 0, got %s", c.ExecTimeout)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of trace, debug, info, warn, error; got %q", c.LogLevel)
	}

	if c.LogDir == "" {
		return fmt.Errorf("log_dir must not be empty")
	}

	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path must not be empty when history is enabled")
	}
	if c.History.KeepAttemptsDays < 0 {
		return fmt.Errorf("history.keep_attempts_days must be >= 0, got %d", c.History.KeepAttemptsDays)
	}

	return nil
}
