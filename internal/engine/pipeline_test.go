package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jormala/tablewatch/internal/meta"
	"github.com/jormala/tablewatch/internal/registry"
)

func newTestPipeline(metaClient MetadataClient, runner CommandRunner, prompter Prompter) *Pipeline {
	return NewPipeline(&PipelineConfig{
		Binary:   "storagecli",
		Host:     "https://connection.example.com",
		Token:    "secret-token",
		Meta:     metaClient,
		Runner:   runner,
		Prompter: prompter,
		Logger:   testLogger(),
	})
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  registry.Record
		want []string
	}{
		{
			name: "unlimited omits the limit flag entirely",
			rec:  registry.Record{Table: "in.c-main.customers", LocalPath: "/data/customers.csv", RowLimit: 0},
			want: []string{
				"download", "in.c-main.customers", "--output", "/data/customers.csv",
				"--host", "https://connection.example.com", "--token", "secret-token",
			},
		},
		{
			name: "bounded export carries the limit",
			rec:  registry.Record{Table: "in.c-main.orders", LocalPath: "/data/orders.csv", RowLimit: 500},
			want: []string{
				"download", "in.c-main.orders", "--output", "/data/orders.csv",
				"--limit", "500",
				"--host", "https://connection.example.com", "--token", "secret-token",
			},
		},
		{
			name: "header flag only when requested",
			rec:  registry.Record{Table: "in.c-main.events", LocalPath: "/data/events.csv", RowLimit: 1, IncludeHeaders: true},
			want: []string{
				"download", "in.c-main.events", "--output", "/data/events.csv",
				"--limit", "1", "--header",
				"--host", "https://connection.example.com", "--token", "secret-token",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPipeline(&fakeMeta{}, &fakeRunner{}, nil)

			assert.Equal(t, tt.want, p.buildArgs(&tt.rec))
		})
	}
}

func TestPipelineRunSuccess(t *testing.T) {
	t.Parallel()

	m := &fakeMeta{signal: "2024-02-01T00:00:00Z"}
	r := &fakeRunner{exitCode: 0, lines: []string{"exporting...", "done: 1200 rows"}}
	prompter := &fakePrompter{}

	p := newTestPipeline(m, r, prompter)

	rec := &registry.Record{Project: "p1", Table: "in.c-main.customers", LocalPath: "/tmp/x.csv"}
	outcome := p.Run(context.Background(), rec)

	assert.Equal(t, OutcomeSuccess, outcome.Status)
	assert.Equal(t, "2024-02-01T00:00:00Z", outcome.NewSignal)
	assert.True(t, outcome.Succeeded())

	// The signal comes from metadata readback, never the local clock.
	assert.Equal(t, 1, m.callCount("in.c-main.customers"))

	// Progress streamed line by line.
	assert.Equal(t, []string{"exporting...", "done: 1200 rows"}, prompter.progress)
}

func TestPipelineRunSignalReadbackFails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		meta *fakeMeta
	}{
		{"readback error", &fakeMeta{err: errors.New("dial tcp: timeout")}},
		{"readback empty", &fakeMeta{signal: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPipeline(tt.meta, &fakeRunner{exitCode: 0}, nil)

			rec := &registry.Record{Project: "p1", Table: "in.c-main.t", LocalPath: "/tmp/t.csv"}
			outcome := p.Run(context.Background(), rec)

			// Download worked, but the record cannot advance truthfully:
			// degrade to transient so the next cycle re-evaluates.
			assert.Equal(t, OutcomeTransient, outcome.Status)
			assert.Equal(t, KindSignalUnavailable, outcome.Kind)
			assert.False(t, outcome.Succeeded())
		})
	}
}

func TestPipelineRunEmptyTableWorkaround(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	localPath := filepath.Join(dir, "exports", "empty.csv")

	m := &fakeMeta{
		signal: "2024-02-01T00:00:00Z",
		detail: &meta.TableDetail{Columns: []string{"id", "name", `quo"ted`}},
	}
	r := &fakeRunner{exitCode: 1, lines: []string{"Error: cannot export table without rows"}}

	p := newTestPipeline(m, r, nil)

	rec := &registry.Record{
		Project:        "p1",
		Table:          "in.c-main.empty",
		LocalPath:      localPath,
		IncludeHeaders: true,
	}

	outcome := p.Run(context.Background(), rec)

	assert.Equal(t, OutcomeWorkaround, outcome.Status)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, "2024-02-01T00:00:00Z", outcome.NewSignal)

	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "\"id\",\"name\",\"quo\"\"ted\"\n", string(content))
}

func TestPipelineRunWorkaroundWithoutHeaders(t *testing.T) {
	t.Parallel()

	localPath := filepath.Join(t.TempDir(), "empty.csv")

	m := &fakeMeta{signal: "2024-02-01T00:00:00Z"}
	r := &fakeRunner{exitCode: 1, lines: []string{"no rows to export"}}

	p := newTestPipeline(m, r, nil)

	rec := &registry.Record{Project: "p1", Table: "in.c-main.empty", LocalPath: localPath}
	outcome := p.Run(context.Background(), rec)

	assert.Equal(t, OutcomeWorkaround, outcome.Status)

	content, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Empty(t, string(content))
}

func TestPipelineRunTransientFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		output   string
		wantKind ErrorKind
	}{
		{"rate limited", "HTTP 429 Too Many Requests", KindRateLimited},
		{"server error", "503 Service Unavailable", KindTransientServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			localPath := filepath.Join(t.TempDir(), "t.csv")
			r := &fakeRunner{exitCode: 1, lines: []string{tt.output}}

			p := newTestPipeline(&fakeMeta{signal: "s1"}, r, nil)

			rec := &registry.Record{Project: "p1", Table: "in.c-main.t", LocalPath: localPath}
			outcome := p.Run(context.Background(), rec)

			assert.Equal(t, OutcomeTransient, outcome.Status)
			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.False(t, outcome.Succeeded())

			// No placeholder is synthesized for transient failures.
			_, err := os.Stat(localPath)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestPipelineRunFatalFailureCarriesRawOutput(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{exitCode: 2, lines: []string{"Error: invalid token for project"}}

	p := newTestPipeline(&fakeMeta{signal: "s1"}, r, nil)

	rec := &registry.Record{Project: "p1", Table: "in.c-main.t", LocalPath: "/tmp/t.csv"}
	outcome := p.Run(context.Background(), rec)

	assert.Equal(t, OutcomeFatal, outcome.Status)
	assert.Equal(t, KindFatal, outcome.Kind)
	assert.Contains(t, outcome.Detail, "invalid token")
}

func TestPipelineRunSpawnFailure(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{spawnErr: errors.New(`exec: "storagecli": executable file not found in $PATH`)}

	p := newTestPipeline(&fakeMeta{}, r, nil)

	rec := &registry.Record{Project: "p1", Table: "in.c-main.t", LocalPath: "/tmp/t.csv"}
	outcome := p.Run(context.Background(), rec)

	assert.Equal(t, OutcomeFatal, outcome.Status)
	assert.Contains(t, outcome.Detail, "not found")
}
