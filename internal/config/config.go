// ABOUTME: Configuration loading and parsing for stream-agents
// ABOUTME: Supports YAML or TOML files with environment variable expansion, .env files and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete stream-agents configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Coordination CoordinationConfig `yaml:"coordination" toml:"coordination"`
	Agents       []AgentConfig      `yaml:"agents" toml:"agents"`
	Simulation   SimulationConfig   `yaml:"simulation" toml:"simulation"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP query surface address. Empty disables it.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// CoordinationConfig tunes the coordinator loop and ledger
type CoordinationConfig struct {
	Enabled            bool    `yaml:"enabled" toml:"enabled"`
	AutoApplyThreshold float64 `yaml:"auto_apply_threshold" toml:"auto_apply_threshold"`
	HistoryLimit       int     `yaml:"history_limit" toml:"history_limit"`
	AppliedLogSize     int     `yaml:"applied_log_size" toml:"applied_log_size"`

	Interval      time.Duration `yaml:"-" toml:"-"`
	RecoveryPause time.Duration `yaml:"-" toml:"-"`
	CollectWindow time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML unmarshaling
	IntervalRaw      string `yaml:"interval" toml:"interval"`
	RecoveryPauseRaw string `yaml:"recovery_pause" toml:"recovery_pause"`
	CollectWindowRaw string `yaml:"collect_window" toml:"collect_window"`
}

// AgentConfig describes one agent instance
type AgentConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Kind string `yaml:"kind" toml:"kind"`
	// Enabled defaults to true when omitted
	Enabled  *bool          `yaml:"enabled" toml:"enabled"`
	Settings map[string]any `yaml:"settings" toml:"settings"`

	UpdateInterval    time.Duration `yaml:"-" toml:"-"`
	UpdateIntervalRaw string        `yaml:"update_interval" toml:"update_interval"`
}

// IsEnabled reports whether the agent should run.
func (a AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Name returns the agent's bus id, defaulting to its kind.
func (a AgentConfig) Name() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Kind
}

// SimulationConfig holds settings for the built-in simulated host
type SimulationConfig struct {
	// Seed fixes the random source; 0 picks a random seed
	Seed uint64 `yaml:"seed" toml:"seed"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Reserved bus ids that agents may not use.
var reservedIDs = []string{"coordinator", "all"}

// Default returns the configuration used when no file is given: coordination
// enabled with one content-curation and one stream-quality agent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Coordination: CoordinationConfig{
			Enabled:            true,
			AutoApplyThreshold: 0.8,
			HistoryLimit:       1000,
			AppliedLogSize:     10,
			Interval:           60 * time.Second,
			RecoveryPause:      5 * time.Second,
			CollectWindow:      300 * time.Second,
		},
		Agents: []AgentConfig{
			{ID: "content_curation", Kind: "content_curation", UpdateInterval: 60 * time.Second},
			{ID: "stream_quality", Kind: "stream_quality", UpdateInterval: 30 * time.Second},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from the file extension; anything but .toml is YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Values absent from the file keep their Default() values.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, FormatFor(path))
}

// Parse decodes configuration content in the given format. See Load.
func Parse(data []byte, format Format) (*Config, error) {
	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	switch format {
	case FormatTOML:
		// TOML decodes arrays of tables into existing elements, so the
		// default agents are only restored when the file names none.
		defaults := cfg.Agents
		cfg.Agents = nil
		md, err := toml.Decode(expandedData, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if !md.IsDefined("agents") {
			cfg.Agents = defaults
		}
	default:
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; existing variables win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading env file %s: %w", p, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// All failures are reported together.
func (c *Config) Validate() error {
	var errs []error

	co := c.Coordination
	if co.AutoApplyThreshold <= 0 || co.AutoApplyThreshold > 1 {
		errs = append(errs, fmt.Errorf("coordination.auto_apply_threshold must be in (0,1], got %v", co.AutoApplyThreshold))
	}
	if co.Interval <= 0 {
		errs = append(errs, fmt.Errorf("coordination.interval must be positive"))
	}
	if co.RecoveryPause <= 0 {
		errs = append(errs, fmt.Errorf("coordination.recovery_pause must be positive"))
	}
	if co.CollectWindow <= 0 {
		errs = append(errs, fmt.Errorf("coordination.collect_window must be positive"))
	}
	if co.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("coordination.history_limit must be positive"))
	}
	if co.AppliedLogSize <= 0 {
		errs = append(errs, fmt.Errorf("coordination.applied_log_size must be positive"))
	}

	seen := make(map[string]bool)
	for i, a := range c.Agents {
		if a.Kind == "" {
			errs = append(errs, fmt.Errorf("agents[%d].kind is required", i))
			continue
		}
		name := a.Name()
		if slices.Contains(reservedIDs, name) {
			errs = append(errs, fmt.Errorf("agents[%d].id %q is reserved", i, name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("agents[%d].id %q is duplicated", i, name))
		}
		seen[name] = true
		if a.UpdateInterval <= 0 {
			errs = append(errs, fmt.Errorf("agents[%d].update_interval must be positive", i))
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"coordination.interval", cfg.Coordination.IntervalRaw, &cfg.Coordination.Interval},
		{"coordination.recovery_pause", cfg.Coordination.RecoveryPauseRaw, &cfg.Coordination.RecoveryPause},
		{"coordination.collect_window", cfg.Coordination.CollectWindowRaw, &cfg.Coordination.CollectWindow},
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.UpdateIntervalRaw == "" && a.UpdateInterval == 0 {
			a.UpdateInterval = 60 * time.Second
		}
		fields = append(fields, struct {
			name string
			raw  string
			dst  *time.Duration
		}{fmt.Sprintf("agents[%d].update_interval", i), a.UpdateIntervalRaw, &a.UpdateInterval})
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "STREAM_AGENTS_CONFIG"

// Locate returns the first existing config file from the search path, or ""
// when none exists.
func Locate() string {
	candidates := []string{os.Getenv(EnvConfigPath), "config.yaml", "config.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "stream-agents", "config.yaml"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// SampleConfig is the starter file written by WriteSample.
const SampleConfig = `# stream-agents configuration
server:
  http_addr: "127.0.0.1:8080"

coordination:
  enabled: true
  interval: "60s"
  recovery_pause: "5s"
  collect_window: "5m"
  auto_apply_threshold: 0.8
  history_limit: 1000
  applied_log_size: 10

agents:
  - id: content_curation
    kind: content_curation
    update_interval: "60s"
    settings:
      min_confidence: 0.6
      engagement_weight: 0.6
      peak_hours: [19, 20, 21]
  - id: stream_quality
    kind: stream_quality
    update_interval: "30s"
    settings:
      platforms: [primary]
      auto_adjust: true
      quality_threshold: 0.8

simulation:
  seed: 0

logging:
  level: info
  format: text
`

// WriteSample writes SampleConfig to path, refusing to overwrite unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(SampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
