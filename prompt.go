package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/jormala/tablewatch/internal/engine"
)

// terminalPrompter implements engine.Prompter on a terminal. When stdin is
// not a TTY (cron, CI), prompts auto-dismiss so the daemon never blocks on
// input nobody can give.
type terminalPrompter struct {
	in     *bufio.Reader
	logger *slog.Logger

	// lookupPath maps a table ID to its local artifact, for the "open"
	// choice. Opening happens entirely on this side; the engine only
	// learns that no resync was requested.
	lookupPath func(tableID string) (string, bool)
}

func newTerminalPrompter(logger *slog.Logger, lookupPath func(tableID string) (string, bool)) *terminalPrompter {
	return &terminalPrompter{
		in:         bufio.NewReader(os.Stdin),
		logger:     logger,
		lookupPath: lookupPath,
	}
}

// ShowProgress prints one tool output line. Fire-and-forget; the engine
// expects no backpressure from here.
func (p *terminalPrompter) ShowProgress(text string) {
	fmt.Fprintf(os.Stderr, "  %s\n", text)
}

// PromptUser asks the three-way question: resync now, open the existing
// local file, or dismiss.
func (p *terminalPrompter) PromptUser(tableID, message string) engine.Choice {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		p.logger.Info("change detected but no terminal to prompt on, dismissing",
			slog.String("table", tableID),
		)

		return engine.ChoiceDismiss
	}

	fmt.Fprintf(os.Stderr, "\n%s\n[r]esync now / [o]pen local file / [d]ismiss: ", message)

	line, err := p.in.ReadString('\n')
	if err != nil {
		return engine.ChoiceDismiss
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "resync":
		return engine.ChoiceResyncNow
	case "o", "open":
		if p.lookupPath != nil {
			if path, ok := p.lookupPath(tableID); ok {
				p.openLocal(path)
			}
		}

		return engine.ChoiceOpenFile
	default:
		return engine.ChoiceDismiss
	}
}

// openLocal opens a file with the platform opener. Best-effort: a failure
// is reported but never fails the watch loop.
func (p *terminalPrompter) openLocal(path string) {
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}

	if err := exec.Command(opener, path).Start(); err != nil {
		p.logger.Warn("could not open local file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
