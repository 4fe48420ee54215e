// Package config provides configuration management using Viper.
// Values come from defaults, environment variables and command-line flags;
// there is no configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lab02-research/lhmtester/internal/hardware/gpu"
)

// EnvPrefix prefixes every environment variable (e.g. LHMTESTER_DEV_MODE).
const EnvPrefix = "LHMTESTER"

// Config holds all configuration values for the tester.
type Config struct {
	// DevMode enables debug logging with caller information
	DevMode bool `mapstructure:"dev_mode"`

	// LogLevel sets the minimum log level (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level"`

	// LogDir is where the rolling log files are written
	LogDir string `mapstructure:"log_dir"`

	// Backends lists the hardware backends to enumerate, in order
	Backends []string `mapstructure:"backends"`

	// GPUTimeout is the maximum time a single GPU acquisition may take
	GPUTimeout time.Duration `mapstructure:"gpu_timeout"`

	// NoWait skips the "press any key" prompt on exit
	NoWait bool `mapstructure:"no_wait"`

	// Version is the version shown in the banner
	Version string `mapstructure:"version"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DevMode:    false,
		LogLevel:   "info",
		LogDir:     defaultLogDir(),
		Backends:   gpu.BackendNames(),
		GPUTimeout: 10 * time.Second,
		NoWait:     false,
		Version:    "1.0.0",
	}
}

// defaultLogDir is the logs directory next to the executable.
func defaultLogDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "logs"
	}
	return filepath.Join(filepath.Dir(exe), "logs")
}

// Flags returns the command-line flag set understood by Load.
func Flags() *pflag.FlagSet {
	defaults := DefaultConfig()

	fs := pflag.NewFlagSet("lhmtester", pflag.ContinueOnError)
	fs.Bool("dev", defaults.DevMode, "enable debug logging")
	fs.String("log-level", defaults.LogLevel, "minimum log level (debug, info, warn, error)")
	fs.String("log-dir", defaults.LogDir, "directory for rolling log files")
	fs.StringSlice("backends", defaults.Backends, "hardware backends to enumerate, in order")
	fs.Duration("gpu-timeout", defaults.GPUTimeout, "maximum time for a single GPU acquisition")
	fs.Bool("no-wait", defaults.NoWait, "exit without waiting for a key press")
	return fs
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"dev":         "dev_mode",
	"log-level":   "log_level",
	"log-dir":     "log_dir",
	"backends":    "backends",
	"gpu-timeout": "gpu_timeout",
	"no-wait":     "no_wait",
}

// Load reads configuration from environment variables and flags.
// Flags take precedence over environment variables, which take precedence
// over defaults. All environment variables are prefixed with "LHMTESTER_".
func Load(args []string) (*Config, error) {
	v := viper.New()

	// Set default values
	defaults := DefaultConfig()
	v.SetDefault("dev_mode", defaults.DevMode)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_dir", defaults.LogDir)
	v.SetDefault("backends", defaults.Backends)
	v.SetDefault("gpu_timeout", defaults.GPUTimeout)
	v.SetDefault("no_wait", defaults.NoWait)
	v.SetDefault("version", defaults.Version)

	// Example: LHMTESTER_DEV_MODE=true, LHMTESTER_BACKENDS=drm
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Backends = splitList(cfg.Backends)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// splitList normalizes list values; environment variables arrive as a single
// comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("backends must not be empty")
	}

	known := make(map[string]bool)
	for _, name := range gpu.BackendNames() {
		known[name] = true
	}
	for _, name := range c.Backends {
		if !known[name] {
			return fmt.Errorf("unknown backend %q: must be one of %s", name, strings.Join(gpu.BackendNames(), ", "))
		}
	}

	if c.GPUTimeout <= 0 {
		return fmt.Errorf("gpu_timeout must be positive, got %v", c.GPUTimeout)
	}

	return nil
}

// String returns a string representation of the config (useful for logging).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DevMode: %v, LogLevel: %s, LogDir: %s, Backends: %v, GPUTimeout: %v, NoWait: %v, Version: %s}",
		c.DevMode, c.LogLevel, c.LogDir, c.Backends, c.GPUTimeout, c.NoWait, c.Version,
	)
}
