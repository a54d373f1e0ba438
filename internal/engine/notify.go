package engine

import (
	"fmt"
	"log/slog"

	"github.com/jormala/tablewatch/internal/registry"
)

// Action is what the policy decided to do about a detected change.
type Action int

// Policy actions.
const (
	ActionAutoResync Action = iota
	ActionPromptUser
)

// Policy decides, per detected change, whether the pipeline runs
// automatically or the user is asked first. Driven by a single flag fixed
// at scheduler start; there is no per-record override and no persisted
// "snoozed" state — a dismissed change simply re-prompts on the next
// detection.
type Policy struct {
	autoResync bool
	prompter   Prompter
	logger     *slog.Logger
}

// NewPolicy creates a Policy. prompter may be nil only when autoResync is
// true.
func NewPolicy(autoResync bool, prompter Prompter, logger *slog.Logger) *Policy {
	return &Policy{autoResync: autoResync, prompter: prompter, logger: logger}
}

// Decide returns the action for a detected change.
func (p *Policy) Decide(rec *registry.Record) Action {
	if p.autoResync {
		return ActionAutoResync
	}

	return ActionPromptUser
}

// Ask delegates the three-way choice to the UI collaborator. Opening the
// existing artifact happens entirely on the UI side; from the engine's view
// both OpenFile and Dismiss mean "no resync this cycle".
func (p *Policy) Ask(rec *registry.Record, newSignal string) Choice {
	if p.prompter == nil {
		p.logger.Warn("no prompter configured, dismissing change",
			slog.String("table", rec.Table),
		)

		return ChoiceDismiss
	}

	msg := fmt.Sprintf("table %s changed (signal %s); resync %s?",
		rec.Table, newSignal, rec.LocalPath)

	return p.prompter.PromptUser(rec.Table, msg)
}
