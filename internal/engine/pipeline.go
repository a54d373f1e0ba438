package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jormala/tablewatch/internal/registry"
)

// artifactPerm is the mode for placeholder artifacts; artifactDirPerm for
// parent directories created on the way.
const (
	artifactPerm    = 0o644
	artifactDirPerm = 0o755
)

// PipelineConfig holds the collaborators and connection settings for
// NewPipeline.
type PipelineConfig struct {
	Binary   string // export tool binary name or path
	Host     string // remote service base URL, appended as credentials
	Token    string // API token, appended as credentials
	Meta     MetadataClient
	Runner   CommandRunner
	Prompter Prompter // receives line-by-line progress; may be nil
	Logger   *slog.Logger
}

// Pipeline re-invokes the external export tool for a watch record and
// classifies the outcome, including the empty-table workaround.
//
// The pipeline never mutates the registry: the caller applies success
// outcomes through ApplyOutcome, so a scheduler pass and a user-triggered
// resync share one mutation path.
type Pipeline struct {
	binary   string
	host     string
	token    string
	meta     MetadataClient
	runner   CommandRunner
	prompter Prompter
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg *PipelineConfig) *Pipeline {
	return &Pipeline{
		binary:   cfg.Binary,
		host:     cfg.Host,
		token:    cfg.Token,
		meta:     cfg.Meta,
		runner:   cfg.Runner,
		prompter: cfg.Prompter,
		logger:   cfg.Logger,
	}
}

// buildArgs constructs the tool's argument vector from the record.
//
// The conditional flags are a contract, not cosmetics: the tool reads an
// explicit "--limit 0" as a zero-row export, so "unlimited" must be signaled
// by omitting the flag entirely. Same for "--header": present means on.
func (p *Pipeline) buildArgs(rec *registry.Record) []string {
	args := []string{"download", rec.Table, "--output", rec.LocalPath}

	if rec.RowLimit > 0 {
		args = append(args, "--limit", strconv.Itoa(rec.RowLimit))
	}

	if rec.IncludeHeaders {
		args = append(args, "--header")
	}

	// Connection credentials are appended by the caller side of the tool
	// contract, never stored with the record.
	args = append(args, "--host", p.host, "--token", p.token)

	return args
}

// Run re-downloads the record's table and classifies the result.
// Every path returns a value; no error escapes as an error.
func (p *Pipeline) Run(ctx context.Context, rec *registry.Record) ResyncOutcome {
	args := p.buildArgs(rec)

	p.logger.Info("resync starting",
		slog.String("project", rec.Project),
		slog.String("table", rec.Table),
		slog.String("local_path", rec.LocalPath),
	)

	res, err := p.runner.Run(ctx, p.binary, args, p.emitProgress)
	if err != nil {
		// The process could not even be observed (binary missing, spawn
		// failure). Nothing about the remote state is known.
		return ResyncOutcome{
			Status: OutcomeFatal,
			Kind:   KindFatal,
			Detail: err.Error(),
		}
	}

	if res.ExitCode == 0 {
		return p.successOutcome(ctx, rec, OutcomeSuccess)
	}

	kind := classifyToolOutput(res.Output)

	switch kind {
	case KindEmptyTableDefect:
		return p.applyWorkaround(ctx, rec)

	case KindRateLimited, KindTransientServer:
		return ResyncOutcome{
			Status: OutcomeTransient,
			Kind:   kind,
			Detail: strings.TrimSpace(res.Output),
		}

	default:
		return ResyncOutcome{
			Status: OutcomeFatal,
			Kind:   KindFatal,
			Detail: strings.TrimSpace(res.Output),
		}
	}
}

// emitProgress forwards one tool output line to the UI. Fire-and-forget.
func (p *Pipeline) emitProgress(line string) {
	if p.prompter != nil {
		p.prompter.ShowProgress(line)
	}
}

// successOutcome reads the freshness signal back from the metadata service
// and builds a success outcome carrying it. The signal is never assumed
// from the local clock.
//
// If the readback fails or returns nothing, the download itself still
// succeeded but the record cannot be advanced truthfully; the outcome
// degrades to a transient failure so the record stays at its old signal
// and the next cycle re-evaluates.
func (p *Pipeline) successOutcome(ctx context.Context, rec *registry.Record, status OutcomeStatus) ResyncOutcome {
	signal, err := p.meta.FreshnessSignal(ctx, rec.Table)
	if err != nil {
		return ResyncOutcome{
			Status: OutcomeTransient,
			Kind:   KindSignalUnavailable,
			Detail: fmt.Sprintf("download succeeded but signal readback failed: %v", err),
		}
	}

	if signal == "" {
		return ResyncOutcome{
			Status: OutcomeTransient,
			Kind:   KindSignalUnavailable,
			Detail: "download succeeded but service returned no freshness signal",
		}
	}

	return ResyncOutcome{Status: status, NewSignal: signal}
}

// applyWorkaround handles the known empty-table defect: the export tool
// fails on a zero-row table instead of writing an empty file. A placeholder
// artifact is synthesized locally so the materialization stays consistent,
// and the outcome counts as success.
func (p *Pipeline) applyWorkaround(ctx context.Context, rec *registry.Record) ResyncOutcome {
	content := ""

	if rec.IncludeHeaders {
		content = p.placeholderHeader(ctx, rec.Table)
	}

	if err := writeArtifact(rec.LocalPath, content); err != nil {
		return ResyncOutcome{
			Status: OutcomeFatal,
			Kind:   KindFatal,
			Detail: fmt.Sprintf("empty-table workaround failed: %v", err),
		}
	}

	p.logger.Info("empty-table workaround applied",
		slog.String("table", rec.Table),
		slog.String("local_path", rec.LocalPath),
	)

	return p.successOutcome(ctx, rec, OutcomeWorkaround)
}

// placeholderHeader builds a CSV header line from the table's structural
// detail. Falls back to an empty artifact when the columns cannot be
// fetched — a missing header beats a failed workaround.
func (p *Pipeline) placeholderHeader(ctx context.Context, tableID string) string {
	detail, err := p.meta.Table(ctx, tableID)
	if err != nil || len(detail.Columns) == 0 {
		p.logger.Warn("placeholder header unavailable, writing empty artifact",
			slog.String("table", tableID),
		)

		return ""
	}

	quoted := make([]string, len(detail.Columns))
	for i, col := range detail.Columns {
		quoted[i] = `"` + strings.ReplaceAll(col, `"`, `""`) + `"`
	}

	return strings.Join(quoted, ",") + "\n"
}

// writeArtifact writes the placeholder file, creating parent directories.
func writeArtifact(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), artifactDirPerm); err != nil {
		return fmt.Errorf("engine: creating artifact directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), artifactPerm); err != nil {
		return fmt.Errorf("engine: writing placeholder artifact: %w", err)
	}

	return nil
}
