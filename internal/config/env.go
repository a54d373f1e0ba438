package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "TABLEWATCH_CONFIG"
	EnvHost    = "TABLEWATCH_HOST"
	EnvToken   = "TABLEWATCH_TOKEN" //nolint:gosec // G101: variable name, not a credential
	EnvProject = "TABLEWATCH_PROJECT"
)

// EnvOverrides holds values derived from environment variables.
// The token override exists so CI and cron jobs can avoid writing
// credentials into the config file.
type EnvOverrides struct {
	ConfigPath string // TABLEWATCH_CONFIG: override config file path
	Host       string // TABLEWATCH_HOST: remote service base URL
	Token      string // TABLEWATCH_TOKEN: API token
	Project    string // TABLEWATCH_PROJECT: default project identifier
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Host:       os.Getenv(EnvHost),
		Token:      os.Getenv(EnvToken),
		Project:    os.Getenv(EnvProject),
	}
}
