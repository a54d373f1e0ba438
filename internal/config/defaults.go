package config

// Default values applied before the config file is read.
const (
	DefaultPollInterval = "5m"
	DefaultRecordDelay  = "2s"
	DefaultInitialDelay = "3s"
	DefaultToolBinary   = "storagecli"
	DefaultLogLevel     = "info"
)

// DefaultConfig returns a Config populated with all default values.
// Connection settings have no defaults; host and token must come from the
// config file or environment.
func DefaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			PollInterval: DefaultPollInterval,
			AutoResync:   true,
			RecordDelay:  DefaultRecordDelay,
			InitialDelay: DefaultInitialDelay,
		},
		Tool: ToolConfig{
			Binary: DefaultToolBinary,
		},
		Logging: LoggingConfig{
			LogLevel: DefaultLogLevel,
		},
	}
}
