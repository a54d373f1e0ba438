// Package journal appends one line per classified check/resync outcome to a
// log file, so operational history survives independently of the registry.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// filePerm is the mode for the journal file; dirPerm for its directory.
const (
	filePerm = 0o600
	dirPerm  = 0o700
)

// Journal is a line-oriented append sink. Writes are serialized and flushed
// per entry; a resync outcome must hit the disk before the process can be
// interrupted.
type Journal struct {
	mu      sync.Mutex
	f       *os.File
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (or creates) the journal file in append mode, creating parent
// directories as needed.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}

	return &Journal{f: f, logger: logger, nowFunc: time.Now}, nil
}

// Append writes a single timestamped entry. Formats like fmt.Sprintf.
// Append never fails the caller: a journal write error is logged and
// swallowed because operational history must not break the engine.
func (j *Journal) Append(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()

	line := fmt.Sprintf("%s %s\n",
		j.nowFunc().UTC().Format(time.RFC3339),
		fmt.Sprintf(format, args...),
	)

	if _, err := j.f.WriteString(line); err != nil {
		j.logger.Warn("journal write failed", slog.String("error", err.Error()))
	}
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.f.Close()
}
