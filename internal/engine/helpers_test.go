package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/jormala/tablewatch/internal/meta"
)

// testLogger returns a quiet logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMeta is a scriptable MetadataClient. Signals and errors are keyed by
// table ID; unkeyed tables fall back to the default fields.
type fakeMeta struct {
	mu      sync.Mutex
	signal  string
	err     error
	detail  *meta.TableDetail
	signals map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeMeta) FreshnessSignal(_ context.Context, tableID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, tableID)

	if err, ok := f.errs[tableID]; ok {
		return "", err
	}

	if f.err != nil {
		return "", f.err
	}

	if sig, ok := f.signals[tableID]; ok {
		return sig, nil
	}

	return f.signal, nil
}

func (f *fakeMeta) Table(_ context.Context, tableID string) (*meta.TableDetail, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.detail != nil {
		return f.detail, nil
	}

	return &meta.TableDetail{ID: tableID, LastImportDate: f.signal}, nil
}

func (f *fakeMeta) callCount(tableID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0

	for _, id := range f.calls {
		if id == tableID {
			n++
		}
	}

	return n
}

// fakeRunner is a scriptable CommandRunner that records the invocation and
// replays canned output lines.
type fakeRunner struct {
	exitCode int
	lines    []string
	spawnErr error

	mu      sync.Mutex
	gotName string
	gotArgs []string
	runs    int
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, onLine func(string)) (*RunResult, error) {
	f.mu.Lock()
	f.gotName = name
	f.gotArgs = args
	f.runs++
	f.mu.Unlock()

	if f.spawnErr != nil {
		return nil, f.spawnErr
	}

	output := ""

	for _, line := range f.lines {
		output += line + "\n"

		if onLine != nil {
			onLine(line)
		}
	}

	return &RunResult{ExitCode: f.exitCode, Output: output}, nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.runs
}

// fakePrompter is a scriptable Prompter capturing prompts and progress.
type fakePrompter struct {
	mu       sync.Mutex
	choice   Choice
	prompts  []string
	progress []string
}

func (f *fakePrompter) PromptUser(_, message string) Choice {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, message)

	return f.choice
}

func (f *fakePrompter) ShowProgress(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.progress = append(f.progress, text)
}

func (f *fakePrompter) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.prompts)
}
