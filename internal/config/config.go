// Package config loads and validates the governor's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/go-governor/internal/otel"
)

// SchedulerConfig sizes the capability pools.
type SchedulerConfig struct {
	InteractiveWorkers int `yaml:"interactive_workers"` // default: NumCPU
	BackgroundWorkers  int `yaml:"background_workers"`  // default: NumCPU/2, min 1
	StealQueueCapacity int `yaml:"steal_queue_capacity"` // default: 64
}

// CompactorConfig controls conversation compaction.
type CompactorConfig struct {
	// ThresholdTokens is the default compaction trigger. Default 4000.
	ThresholdTokens int `yaml:"threshold_tokens"`
	// ThresholdRatio recalculates the threshold per model as
	// context_window * ratio, clamped to [MinThreshold, MaxThreshold].
	ThresholdRatio float64 `yaml:"threshold_ratio"` // default 0.75
	MinThreshold   int     `yaml:"min_threshold"`   // default 1000
	MaxThreshold   int     `yaml:"max_threshold"`   // default 100000
	// KeepRecent messages stay verbatim after compaction. Default 10.
	KeepRecent int `yaml:"keep_recent"`
	// MaxCheckpoints caps checkpoints per session. Default 20.
	MaxCheckpoints int `yaml:"max_checkpoints"`
}

// BudgetConfig sets session spend limits.
type BudgetConfig struct {
	// SessionLimitUSD of 0 means no budget is enforced.
	SessionLimitUSD float64 `yaml:"session_limit_usd"`
}

// LLMConfig selects the provider used for chat and summarization.
type LLMConfig struct {
	// Provider is one of "google", "anthropic", "openai", "openai_compatible".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	// OpenAICompatible settings.
	CompatibleProvider string `yaml:"compatible_provider"`
	CompatibleBaseURL  string `yaml:"compatible_base_url"`
}

// Config is the root configuration.
type Config struct {
	HomeDir   string          `yaml:"home_dir"`
	LogLevel  string          `yaml:"log_level"`
	Heartbeat string          `yaml:"heartbeat"` // 5-field cron expression; empty disables
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Compactor CompactorConfig `yaml:"compactor"`
	Budget    BudgetConfig    `yaml:"budget"`
	LLM       LLMConfig       `yaml:"llm"`
	OTel      otel.Config     `yaml:"otel"`
}

// DefaultHomeDir returns GOVERNOR_HOME if set, else ~/.governor, falling
// back to the working directory.
func DefaultHomeDir() string {
	if dir := os.Getenv("GOVERNOR_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".governor")
}

// Path returns the config file location under homeDir.
func Path(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from homeDir. A missing file yields defaults.
func Load(homeDir string) (Config, error) {
	cfg := Config{HomeDir: homeDir}
	data, err := os.ReadFile(Path(homeDir))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.HomeDir == "" {
		cfg.HomeDir = homeDir
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Scheduler.StealQueueCapacity <= 0 {
		c.Scheduler.StealQueueCapacity = 64
	}
	if c.Compactor.ThresholdTokens <= 0 {
		c.Compactor.ThresholdTokens = 4000
	}
	if c.Compactor.ThresholdRatio <= 0 {
		c.Compactor.ThresholdRatio = 0.75
	}
	if c.Compactor.MinThreshold <= 0 {
		c.Compactor.MinThreshold = 1000
	}
	if c.Compactor.MaxThreshold <= 0 {
		c.Compactor.MaxThreshold = 100000
	}
	if c.Compactor.KeepRecent <= 0 {
		c.Compactor.KeepRecent = 10
	}
	if c.Compactor.MaxCheckpoints <= 0 {
		c.Compactor.MaxCheckpoints = 20
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "google"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = envAPIKey(c.LLM.Provider)
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "google", "anthropic", "openai", "openai_compatible":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Budget.SessionLimitUSD < 0 {
		return fmt.Errorf("session_limit_usd must not be negative")
	}
	if c.Compactor.MinThreshold > c.Compactor.MaxThreshold {
		return fmt.Errorf("compactor min_threshold %d exceeds max_threshold %d",
			c.Compactor.MinThreshold, c.Compactor.MaxThreshold)
	}
	return nil
}

func envAPIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai", "openai_compatible":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv("GEMINI_API_KEY")
	}
}
