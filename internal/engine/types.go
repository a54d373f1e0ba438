// Package engine implements the watch & resync core: change detection
// against the remote freshness signal, the external-tool download pipeline
// with outcome classification, and the non-overlapping polling scheduler.
//
// No error crosses a component boundary as a plain error value here: checks
// and resyncs resolve to tagged results (CheckResult, ResyncOutcome) so
// every caller handles every outcome explicitly. "Unchanged" and "rate
// limited" are expected, frequent outcomes, not failures.
package engine

import (
	"context"

	"github.com/jormala/tablewatch/internal/meta"
)

// ErrorKind classifies why a check or resync did not fully succeed.
type ErrorKind int

// Error taxonomy. SignalUnavailable, RateLimited and TransientServer are
// silent-to-the-user: they self-heal on the next cycle and only appear in
// the journal. EmptyTableDefect converts into a workaround success. Fatal
// is surfaced with the raw tool output.
const (
	KindNone ErrorKind = iota
	KindSignalUnavailable
	KindRateLimited
	KindTransientServer
	KindEmptyTableDefect
	KindFatal
)

// String returns the journal/log name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSignalUnavailable:
		return "signal_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientServer:
		return "transient_server_error"
	case KindEmptyTableDefect:
		return "empty_table_defect"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// CheckStatus is the result category of a single freshness check.
type CheckStatus int

// Check result categories.
const (
	CheckUnchanged CheckStatus = iota
	CheckChanged
	CheckFailed
)

// CheckResult is the ephemeral outcome of Detector.Check. NewSignal is set
// only for CheckChanged; Kind and Detail only for CheckFailed.
type CheckResult struct {
	Status    CheckStatus
	NewSignal string
	Kind      ErrorKind
	Detail    string
}

func unchanged() CheckResult {
	return CheckResult{Status: CheckUnchanged}
}

func changed(newSignal string) CheckResult {
	return CheckResult{Status: CheckChanged, NewSignal: newSignal}
}

func checkFailed(kind ErrorKind, detail string) CheckResult {
	return CheckResult{Status: CheckFailed, Kind: kind, Detail: detail}
}

// OutcomeStatus is the result category of a resync attempt.
type OutcomeStatus int

// Resync outcome categories. OutcomeWorkaround is a success: the local
// artifact is consistent, the "failure" was a known defect of the export
// tool on empty tables.
const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeWorkaround
	OutcomeTransient
	OutcomeFatal
)

// ResyncOutcome is the ephemeral result of Pipeline.Run. NewSignal is set
// for success outcomes; Kind and Detail for failures.
type ResyncOutcome struct {
	Status    OutcomeStatus
	NewSignal string
	Kind      ErrorKind
	Detail    string
}

// Succeeded reports whether the outcome should mutate the registry.
// Only Success and SuccessViaWorkaround advance the stored signal; failed
// outcomes leave the record untouched so the next cycle re-evaluates from
// the same baseline.
func (o *ResyncOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess || o.Status == OutcomeWorkaround
}

// StatusName returns the journal/log name of the outcome status.
func (o *ResyncOutcome) StatusName() string {
	switch o.Status {
	case OutcomeSuccess:
		return "success"
	case OutcomeWorkaround:
		return "success_via_workaround"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomeFatal:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// MetadataClient is the remote metadata collaborator. Defined at the
// consumer per Go convention; satisfied by *meta.Client.
type MetadataClient interface {
	// FreshnessSignal returns the table's current freshness marker, or an
	// empty string when the service cannot determine it.
	FreshnessSignal(ctx context.Context, tableID string) (string, error)

	// Table returns the table's structural detail (columns feed the
	// empty-table workaround's placeholder header).
	Table(ctx context.Context, tableID string) (*meta.TableDetail, error)
}

// Choice is the user's answer to a change prompt.
type Choice int

// Prompt choices. Only ChoiceResyncNow triggers the pipeline; ChoiceOpenFile
// is handled entirely by the UI, and both non-resync choices leave the
// record with a detected-but-unresynced change that simply re-prompts on the
// next detection.
const (
	ChoiceResyncNow Choice = iota
	ChoiceOpenFile
	ChoiceDismiss
)

// Prompter is the UI collaborator: it asks the user about detected changes
// and receives line-by-line progress from the pipeline. ShowProgress is
// fire-and-forget; the engine applies no backpressure from the UI side.
type Prompter interface {
	PromptUser(tableID, message string) Choice
	ShowProgress(text string)
}
