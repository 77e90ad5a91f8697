// Package config handles O's configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mutantcacti/o/internal/paths"
)

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -config flag) is checked first by FindConfig. Then:
// ./config.yaml, ~/.config/o/config.yaml, /etc/o/config.yaml.
func DefaultSearchPaths() []string {
	candidates := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "o", "config.yaml"))
	}

	candidates = append(candidates, "/etc/o/config.yaml")
	return candidates
}

// searchPathsFunc is indirected through a var so tests can substitute a
// hermetic search list without touching the real filesystem locations
// DefaultSearchPaths checks.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// that exists. If nothing is found, returns an empty path and a nil
// error — O runs with defaults when no config file is present.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all O configuration.
type Config struct {
	// TickInterval is the minimum wall-clock duration between tick
	// starts. Must be positive.
	TickInterval time.Duration `yaml:"tick_interval"`
	// MaxTicks stops the run after N ticks. Zero means run forever.
	MaxTicks int `yaml:"max_ticks"`
	// StateDir holds the per-tick execution logs (state/logs/log_<tick>.json).
	StateDir string `yaml:"state_dir"`
	// MemoryDir holds space logs, stdout logs, and subscription/wake/
	// read/incoming snapshots (memory/...).
	MemoryDir string `yaml:"memory_dir"`
	// OutputRoot is the root directory publish targets are confined to.
	OutputRoot string `yaml:"output_root"`
	// LogLevel selects the slog level: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Provider configures the channel substrate / thinker wiring used
	// by cmd/o's "run" subcommand. Concrete provider intelligence is
	// out of core scope; this only selects among the reference shims.
	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig selects and configures a provider implementation.
type ProviderConfig struct {
	// Channel selects the channel substrate: "ws", "mqtt", or "" (disabled).
	Channel string `yaml:"channel"`
	// Thinker selects the stateless thinker: "http" or "" (disabled).
	Thinker string `yaml:"thinker"`

	WebSocket WebSocketConfig   `yaml:"websocket"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	HTTP      HTTPThinkerConfig `yaml:"http"`
}

// WebSocketConfig configures the wschannel provider.
type WebSocketConfig struct {
	ListenAddress string `yaml:"listen_address"` // e.g. ":8081"
}

// MQTTConfig configures the mqttchannel provider.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"` // e.g. "tcp://localhost:1883"
	ClientID  string `yaml:"client_id"`
}

// HTTPThinkerConfig configures the httpthinker provider.
type HTTPThinkerConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, expands a leading
// "~" in directory paths via internal/paths, and validates the result.
// After Load returns successfully, all fields are usable without
// additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}). Convenience for
	// container deployments; the recommended approach is to put values
	// directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.expandHomePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Default returns a default configuration suitable for local
// development: a one-second tick,./state and./memory directories,
// and no provider selected.
func Default() *Config {
	cfg := &Config{
		TickInterval: time.Second,
		StateDir:     "./state",
		MemoryDir:    "./memory",
		OutputRoot:   "./output",
		LogLevel:     "info",
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.StateDir == "" {
		c.StateDir = "./state"
	}
	if c.MemoryDir == "" {
		c.MemoryDir = "./memory"
	}
	if c.OutputRoot == "" {
		c.OutputRoot = "./output"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Provider.HTTP.Timeout == 0 {
		c.Provider.HTTP.Timeout = 30 * time.Second
	}
}

// expandHomePaths expands a leading "~" in directory-valued fields using
// internal/paths' home-directory expansion, so config files can use
// "~/o/state" portably across deployments.
func (c *Config) expandHomePaths() {
	r := paths.New(map[string]string{"home": "~"})
	expand := func(p string) string {
		resolved, err := r.Resolve("home:" + p)
		if err != nil {
			return p
		}
		return resolved
	}
	for _, f := range []*string{&c.StateDir, &c.MemoryDir, &c.OutputRoot} {
		if len(*f) > 0 && (*f)[0] == '~' {
			*f = expand((*f)[1:])
		}
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be non-negative, got %d", c.MaxTicks)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	switch c.Provider.Channel {
	case "", "ws", "mqtt":
	default:
		return fmt.Errorf("provider.channel %q not recognized (valid: ws, mqtt)", c.Provider.Channel)
	}
	switch c.Provider.Thinker {
	case "", "http":
	default:
		return fmt.Errorf("provider.thinker %q not recognized (valid: http)", c.Provider.Thinker)
	}
	return nil
}
