package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxLineBytes bounds a single output line from the tool. Export progress
// lines are short; anything longer stops line splitting on that pipe, and
// the remainder of the stream is drained unclassified.
const maxLineBytes = 1024 * 1024

// RunResult is the observed outcome of one tool invocation: the exit code
// and the full combined stdout+stderr text for post-hoc classification.
type RunResult struct {
	ExitCode int
	Output   string
}

// CommandRunner spawns the external export tool and streams its output.
// Each output line is surfaced through onLine as it arrives; the full text
// is accumulated and returned for classification. A non-nil error means the
// process could not be observed at all (binary missing, pipes failed) —
// a process that ran and exited non-zero is a RunResult, not an error.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) (*RunResult, error)
}

// ExecRunner is the real CommandRunner backed by os/exec. There is
// deliberately no timeout distinct from the caller's context: long-running
// legitimate exports must not be killed.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run spawns the tool and consumes stdout and stderr incrementally,
// line by line, until the process exits.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, onLine func(string)) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: starting %s: %w", name, err)
	}

	r.logger.Debug("tool started",
		slog.String("binary", name),
		slog.Int("pid", cmd.Process.Pid),
	)

	// Both pipes accumulate into one buffer: classification inspects the
	// combined text, and the tool interleaves progress and errors freely.
	var mu sync.Mutex
	var combined strings.Builder

	consume := func(reader io.Reader) error {
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		for scanner.Scan() {
			line := scanner.Text()

			mu.Lock()
			combined.WriteString(line)
			combined.WriteString("\n")
			mu.Unlock()

			if onLine != nil {
				onLine(line)
			}
		}

		if err := scanner.Err(); err != nil {
			// The pipe must keep flowing even when a line is unscannable
			// (e.g. bufio.ErrTooLong): a child blocked writing into a full
			// pipe would never exit and cmd.Wait below would never return.
			_, _ = io.Copy(io.Discard, reader)

			return err
		}

		return nil
	}

	var g errgroup.Group
	g.Go(func() error { return consume(stdout) })
	g.Go(func() error { return consume(stderr) })

	readErr := g.Wait()
	waitErr := cmd.Wait()

	if readErr != nil {
		r.logger.Warn("tool output read error", slog.String("error", readErr.Error()))
	}

	result := &RunResult{Output: combined.String()}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("engine: waiting for %s: %w", name, waitErr)
		}

		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}
