package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jormala/tablewatch/internal/journal"
	"github.com/jormala/tablewatch/internal/registry"
)

// State is the scheduler lifecycle state.
type State int

// Scheduler states. A tick that arrives while Running is dropped entirely —
// not queued, not deferred — so at most one pass is ever in flight.
const (
	StateStopped State = iota
	StateIdle
	StateRunning
)

// String returns the log name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// passIDLen truncates pass UUIDs for log correlation.
const passIDLen = 8

// SchedulerConfig holds the collaborators for NewScheduler.
type SchedulerConfig struct {
	Registry     *registry.Registry
	Detector     *Detector
	Pipeline     *Pipeline
	Policy       *Policy
	Journal      *journal.Journal
	Logger       *slog.Logger
	RecordDelay  time.Duration // pause between records within a pass
	InitialDelay time.Duration // delay before the first pass after Start
}

// Scheduler owns the recurring timer that sweeps all watch records through
// check → policy → resync. Records are processed sequentially with a small
// inter-record delay, specifically to bound the metadata service's request
// rate. A per-record failure never aborts the pass.
type Scheduler struct {
	registry     *registry.Registry
	detector     *Detector
	pipeline     *Pipeline
	policy       *Policy
	journal      *journal.Journal
	logger       *slog.Logger
	recordDelay  time.Duration
	initialDelay time.Duration
	sleepFunc    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	stopping bool
	stopCh   chan struct{}
	ticker   *time.Ticker

	staleMu sync.Mutex
	stale   map[registry.Key]bool

	passWG sync.WaitGroup
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	return &Scheduler{
		registry:     cfg.Registry,
		detector:     cfg.Detector,
		pipeline:     cfg.Pipeline,
		policy:       cfg.Policy,
		journal:      cfg.Journal,
		logger:       cfg.Logger,
		recordDelay:  cfg.RecordDelay,
		initialDelay: cfg.InitialDelay,
		sleepFunc:    ctxSleep,
		state:        StateStopped,
		stale:        make(map[registry.Key]bool),
	}
}

// Start arms the recurring timer and moves Stopped → Idle. The first pass
// runs after a short initial delay rather than a full interval, so a fresh
// session does not sit idle. Returns an error if already started.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return errors.New("engine: scheduler already started")
	}

	s.state = StateIdle
	s.stopping = false
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(interval)

	s.logger.Info("scheduler started",
		slog.Duration("interval", interval),
		slog.Duration("initial_delay", s.initialDelay),
	)

	go s.loop(ctx, s.stopCh)

	return nil
}

// Stop disarms the timer. It does not abort the record currently being
// processed — its download completes naturally — but the pass skips any
// remaining records and no further tick will fire. Safe to call more than
// once. Use Wait to block until the in-flight pass ends.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped || s.stopping {
		return
	}

	s.stopping = true
	s.ticker.Stop()
	close(s.stopCh)

	if s.state == StateIdle {
		s.state = StateStopped
	}
	// StateRunning: endPass observes stopping and finishes the transition.

	s.logger.Info("scheduler stopped")
}

// Wait blocks until any in-flight pass has completed.
func (s *Scheduler) Wait() {
	s.passWG.Wait()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// MarkStale flags a record whose local artifact disappeared: the next pass
// resyncs it even if the remote signal is unchanged.
func (s *Scheduler) MarkStale(project, table string) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()

	s.stale[registry.Key{Project: project, Table: table}] = true
}

// loop drives ticks until stopped. The initial timer gives the first pass
// its head start; the ticker takes over afterwards.
func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()

	for {
		select {
		case <-initial.C:
			s.tick(ctx)

		case <-s.ticker.C:
			s.tick(ctx)

		case <-stopCh:
			return

		case <-ctx.Done():
			s.Stop()
			return
		}
	}
}

// tick attempts Idle → Running. If a pass is already running the tick is
// dropped; the pass itself runs on its own goroutine so the loop keeps
// observing stop requests.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.beginPass() {
		s.logger.Debug("pass still running, dropping tick")
		return
	}

	// The pass is detached from the shutdown context: the first signal
	// disarms the timer via Stop, but an in-flight download must complete
	// naturally rather than be killed mid-transfer.
	passCtx := context.WithoutCancel(ctx)

	s.passWG.Add(1)

	go func() {
		defer s.passWG.Done()
		defer s.endPass()

		s.runPass(passCtx)
	}()
}

// beginPass transitions Idle → Running. Returns false when not Idle.
func (s *Scheduler) beginPass() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return false
	}

	s.state = StateRunning

	return true
}

// endPass transitions Running → Idle, or → Stopped when Stop was called
// while the pass was in flight.
func (s *Scheduler) endPass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}

	if s.stopping {
		s.state = StateStopped
	} else {
		s.state = StateIdle
	}
}

// runPass sweeps a snapshot of all records, sequentially. The snapshot is
// taken once at pass start: a registry mutation made mid-pass is visible to
// later passes but never to this pass's own iteration.
func (s *Scheduler) runPass(ctx context.Context) {
	passID := uuid.New().String()[:passIDLen]
	records := s.registry.ListAll()

	s.logger.Info("pass starting",
		slog.String("pass_id", passID),
		slog.Int("records", len(records)),
	)

	start := time.Now()

	for i := range records {
		if s.isStopping() {
			s.logger.Info("stop requested, ending pass early",
				slog.String("pass_id", passID),
				slog.Int("processed", i),
			)

			return
		}

		if i > 0 && s.recordDelay > 0 {
			if err := s.sleepFunc(ctx, s.recordDelay); err != nil {
				s.logger.Info("pass interrupted by shutdown", slog.String("pass_id", passID))
				return
			}
		}

		s.processRecord(ctx, &records[i], passID)
	}

	s.logger.Info("pass complete",
		slog.String("pass_id", passID),
		slog.Int("records", len(records)),
		slog.Duration("duration", time.Since(start)),
	)
}

// processRecord runs one record through check → policy → resync. Failures
// are journaled and isolated; the pass always proceeds to the next record.
func (s *Scheduler) processRecord(ctx context.Context, rec *registry.Record, passID string) {
	res := s.detector.Check(ctx, rec)

	switch res.Status {
	case CheckFailed:
		// Silent to the user: self-heals next cycle. Journal only.
		s.journal.Append("pass=%s check %s/%s failed kind=%s: %s",
			passID, rec.Project, rec.Table, res.Kind, res.Detail)

		s.logger.Warn("freshness check failed",
			slog.String("pass_id", passID),
			slog.String("table", rec.Table),
			slog.String("kind", res.Kind.String()),
		)

	case CheckUnchanged:
		if s.isStale(rec.Key()) {
			// Local artifact disappeared: rebuild it at the unchanged signal.
			s.resync(ctx, rec, rec.LastSignal, passID)
			return
		}

		s.logger.Debug("table unchanged",
			slog.String("pass_id", passID),
			slog.String("table", rec.Table),
		)

	case CheckChanged:
		s.handleChange(ctx, rec, res.NewSignal, passID)
	}
}

// handleChange routes a detected change through the notification policy.
func (s *Scheduler) handleChange(ctx context.Context, rec *registry.Record, newSignal, passID string) {
	if s.policy.Decide(rec) == ActionPromptUser {
		choice := s.policy.Ask(rec, newSignal)
		if choice != ChoiceResyncNow {
			// Not persisted: the next detected change simply re-prompts.
			s.journal.Append("pass=%s change %s/%s detected signal=%s deferred_by_user",
				passID, rec.Project, rec.Table, newSignal)

			return
		}
	}

	s.resync(ctx, rec, newSignal, passID)
}

// resync runs the pipeline and applies the outcome. Only success outcomes
// mutate the registry; failures leave the record at its old signal so the
// next pass re-evaluates from the same baseline.
func (s *Scheduler) resync(ctx context.Context, rec *registry.Record, newSignal, passID string) {
	outcome := s.pipeline.Run(ctx, rec)

	s.journal.Append("pass=%s resync %s/%s outcome=%s signal=%q kind=%s %s",
		passID, rec.Project, rec.Table, outcome.StatusName(),
		outcome.NewSignal, outcome.Kind, outcome.Detail)

	switch {
	case outcome.Succeeded():
		if err := ApplyOutcome(ctx, s.registry, rec, &outcome); err != nil {
			s.logger.Error("failed to store resync outcome",
				slog.String("table", rec.Table),
				slog.String("error", err.Error()),
			)

			return
		}

		s.clearStale(rec.Key())

		s.logger.Info("resync succeeded",
			slog.String("pass_id", passID),
			slog.String("table", rec.Table),
			slog.String("signal", outcome.NewSignal),
			slog.Bool("workaround", outcome.Status == OutcomeWorkaround),
		)

	case outcome.Status == OutcomeTransient:
		// Silent: retried naturally on the next cycle.
		s.logger.Warn("resync failed transiently",
			slog.String("pass_id", passID),
			slog.String("table", rec.Table),
			slog.String("kind", outcome.Kind.String()),
		)

	default:
		// Fatal failures are the one user-visible error class; the raw
		// message travels with them.
		s.logger.Error("resync failed",
			slog.String("pass_id", passID),
			slog.String("table", rec.Table),
			slog.String("detail", outcome.Detail),
		)
	}
}

// ApplyOutcome applies a success outcome to the registry, advancing the
// record's stored signal. Shared by scheduler passes and user-triggered
// resyncs. Failed outcomes are a no-op.
func ApplyOutcome(ctx context.Context, reg *registry.Registry, rec *registry.Record, outcome *ResyncOutcome) error {
	if !outcome.Succeeded() {
		return nil
	}

	rec.LastSignal = outcome.NewSignal

	return reg.Upsert(ctx, rec)
}

func (s *Scheduler) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopping
}

func (s *Scheduler) isStale(key registry.Key) bool {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()

	return s.stale[key]
}

func (s *Scheduler) clearStale(key registry.Key) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()

	delete(s.stale, key)
}

// ctxSleep waits for the duration or until the context is canceled. The
// scheduler injects it via sleepFunc; tests replace it to avoid real delays.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
