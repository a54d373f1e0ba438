package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the effective configuration after the override chain has been
// applied and string durations have been parsed.
type Resolved struct {
	Connection ConnectionConfig
	Tool       ToolConfig
	Logging    LoggingConfig

	PollInterval time.Duration
	AutoResync   bool
	RecordDelay  time.Duration
	InitialDelay time.Duration
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal: silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables.
func Resolve(env EnvOverrides, cliConfigPath string) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.Host != "" {
		cfg.Connection.Host = env.Host
	}

	if env.Token != "" {
		cfg.Connection.Token = env.Token
	}

	if env.Project != "" {
		cfg.Connection.Project = env.Project
	}

	return resolveDurations(cfg)
}

// resolveDurations parses the string durations in the watch section and
// validates the tool binary. Returns the fully resolved configuration.
func resolveDurations(cfg *Config) (*Resolved, error) {
	poll, err := parseDuration("watch.poll_interval", cfg.Watch.PollInterval)
	if err != nil {
		return nil, err
	}

	recordDelay, err := parseDuration("watch.record_delay", cfg.Watch.RecordDelay)
	if err != nil {
		return nil, err
	}

	initialDelay, err := parseDuration("watch.initial_delay", cfg.Watch.InitialDelay)
	if err != nil {
		return nil, err
	}

	if cfg.Tool.Binary == "" {
		return nil, errors.New("config: tool.binary must not be empty")
	}

	return &Resolved{
		Connection:   cfg.Connection,
		Tool:         cfg.Tool,
		Logging:      cfg.Logging,
		PollInterval: poll,
		AutoResync:   cfg.Watch.AutoResync,
		RecordDelay:  recordDelay,
		InitialDelay: initialDelay,
	}, nil
}

// parseDuration parses a duration string, rejecting zero and negative values.
func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, d)
	}

	return d, nil
}

// RequireConnection validates that the resolved config carries enough to
// reach the remote service. Called by commands that touch the network;
// registry-only commands (list, remove) work without it.
func (r *Resolved) RequireConnection() error {
	if r.Connection.Host == "" {
		return errors.New("config: connection.host is not set (config file or " + EnvHost + ")")
	}

	if r.Connection.Token == "" {
		return errors.New("config: connection.token is not set (config file or " + EnvToken + ")")
	}

	return nil
}
