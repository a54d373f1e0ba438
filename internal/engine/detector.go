package engine

import (
	"context"
	"log/slog"

	"github.com/jormala/tablewatch/internal/registry"
)

// Detector decides whether a watched table needs a resync by comparing the
// remote freshness signal against the signal stored at the last successful
// resync.
type Detector struct {
	meta   MetadataClient
	logger *slog.Logger
}

// NewDetector creates a Detector backed by the given metadata client.
func NewDetector(metaClient MetadataClient, logger *slog.Logger) *Detector {
	return &Detector{meta: metaClient, logger: logger}
}

// Check fetches the table's current freshness signal and compares it with
// strict string inequality against the record's stored signal.
//
// An empty current signal yields CheckFailed(SignalUnavailable), never
// Unchanged: a partial API response must not masquerade as "no change".
// Errors from the metadata call are classified and returned as values; no
// error escapes this boundary.
func (d *Detector) Check(ctx context.Context, rec *registry.Record) CheckResult {
	signal, err := d.meta.FreshnessSignal(ctx, rec.Table)
	if err != nil {
		kind := classifyMetaError(err)

		d.logger.Debug("freshness check failed",
			slog.String("table", rec.Table),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)

		return checkFailed(kind, err.Error())
	}

	if signal == "" {
		return checkFailed(KindSignalUnavailable, "service returned no freshness signal")
	}

	if signal == rec.LastSignal {
		return unchanged()
	}

	return changed(signal)
}
