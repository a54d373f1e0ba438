package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[connection]
host = "https://connection.example.com"
token = "secret"
project = "p1"

[watch]
poll_interval = "10m"
auto_resync = false
record_delay = "1s"
initial_delay = "500ms"

[tool]
binary = "/usr/local/bin/storagecli"

[logging]
log_level = "debug"
journal_file = "/var/log/tablewatch.log"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://connection.example.com", cfg.Connection.Host)
	assert.Equal(t, "secret", cfg.Connection.Token)
	assert.Equal(t, "p1", cfg.Connection.Project)
	assert.Equal(t, "10m", cfg.Watch.PollInterval)
	assert.False(t, cfg.Watch.AutoResync)
	assert.Equal(t, "/usr/local/bin/storagecli", cfg.Tool.Binary)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "/var/log/tablewatch.log", cfg.Logging.JournalFile)
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[connection]
host = "https://connection.example.com"
token = "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Unset sections fall back to defaults.
	assert.Equal(t, "5m", cfg.Watch.PollInterval)
	assert.True(t, cfg.Watch.AutoResync)
	assert.Equal(t, "storagecli", cfg.Tool.Binary)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[watch]
pol_interval = "10m"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
	assert.Contains(t, err.Error(), "pol_interval")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolveOverrideChain(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[connection]
host = "https://file-host.example.com"
token = "file-token"
project = "file-project"
`)

	env := EnvOverrides{
		Host:    "https://env-host.example.com",
		Project: "env-project",
	}

	r, err := Resolve(env, path)
	require.NoError(t, err)

	// Environment beats file; file value survives where env is unset.
	assert.Equal(t, "https://env-host.example.com", r.Connection.Host)
	assert.Equal(t, "file-token", r.Connection.Token)
	assert.Equal(t, "env-project", r.Connection.Project)

	assert.Equal(t, 5*time.Minute, r.PollInterval)
	assert.Equal(t, 2*time.Second, r.RecordDelay)
	assert.Equal(t, 3*time.Second, r.InitialDelay)
	assert.True(t, r.AutoResync)
}

func TestResolveRejectsBadDurations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unparseable",
			content: "[watch]\npoll_interval = \"soon\"\n",
			wantErr: "watch.poll_interval",
		},
		{
			name:    "zero",
			content: "[watch]\nrecord_delay = \"0s\"\n",
			wantErr: "must be positive",
		},
		{
			name:    "negative",
			content: "[watch]\ninitial_delay = \"-1s\"\n",
			wantErr: "must be positive",
		},
		{
			name:    "empty tool binary",
			content: "[tool]\nbinary = \"\"\n",
			wantErr: "tool.binary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.content)

			_, err := Resolve(EnvOverrides{}, path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		conn    ConnectionConfig
		wantErr bool
	}{
		{"complete", ConnectionConfig{Host: "https://h", Token: "t"}, false},
		{"missing host", ConnectionConfig{Token: "t"}, true},
		{"missing token", ConnectionConfig{Host: "https://h"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &Resolved{Connection: tt.conn}

			err := r.RequireConnection()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
