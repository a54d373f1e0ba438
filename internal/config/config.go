// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for tablewatch. Settings resolve through
// a three-layer override chain (defaults -> config file -> environment) with
// CLI flags applied by the commands themselves.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Watch      WatchConfig      `toml:"watch"`
	Tool       ToolConfig       `toml:"tool"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ConnectionConfig identifies the remote storage service and the project
// whose tables are being watched. The token is read-only from the engine's
// perspective: tablewatch never writes or refreshes it.
type ConnectionConfig struct {
	Host    string `toml:"host"`
	Token   string `toml:"token"`
	Project string `toml:"project"`
}

// WatchConfig controls the scheduler: polling cadence, whether detected
// changes resync automatically or prompt first, and the pacing delays that
// bound the metadata API request rate.
type WatchConfig struct {
	PollInterval string `toml:"poll_interval"`
	AutoResync   bool   `toml:"auto_resync"`
	RecordDelay  string `toml:"record_delay"`
	InitialDelay string `toml:"initial_delay"`
}

// ToolConfig locates the external export CLI that materializes tables.
type ToolConfig struct {
	Binary string `toml:"binary"`
}

// LoggingConfig controls log level and the journal file that records every
// classified check/resync outcome.
type LoggingConfig struct {
	LogLevel    string `toml:"log_level"`
	JournalFile string `toml:"journal_file"`
}
