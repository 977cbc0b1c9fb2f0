package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pair-agent/internal/logging"
	"pair-agent/internal/observability"
)

// Run kinds.
const (
	KindCycle = "cycle"
	KindExit  = "exit"
)

// ErrBusy is returned by a trigger while another run is in progress.
var ErrBusy = errors.New("run already in progress")

// Runner is the work driven by the Scheduler. *Orchestrator implements it.
type Runner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
	RunExitChecks(ctx context.Context) ExitReport
}

var _ Runner = (*Orchestrator)(nil)

// SchedulerConfig holds run intervals.
type SchedulerConfig struct {
	ExitInterval  time.Duration // fast pass; 0 disables it
	CycleInterval time.Duration // full cycle
	RunOnStart    bool          // run a full cycle immediately
}

// DefaultSchedulerConfig returns the default intervals.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ExitInterval:  5 * time.Minute,
		CycleInterval: 60 * time.Minute,
		RunOnStart:    true,
	}
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running     bool      `json:"running"`
	CurrentKind string    `json:"current_kind,omitempty"`
	StartedAt   time.Time `json:"started_at"`

	Cycles       int       `json:"cycles"`
	ExitPasses   int       `json:"exit_passes"`
	LastCycleAt  time.Time `json:"last_cycle_at"`
	LastExitAt   time.Time `json:"last_exit_at"`
	LastCycleErr string    `json:"last_cycle_error,omitempty"`

	LastCycle *CycleReport `json:"last_cycle,omitempty"`
	LastExit  *ExitReport  `json:"last_exit,omitempty"`
}

// Scheduler serializes full cycles and exit passes: at most one runs at a time,
// whether started by a timer or a manual trigger.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	log    *logrus.Entry
	now    func() time.Time

	runMu sync.Mutex // held for the duration of a run

	mu     sync.Mutex // guards status
	status Status
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger logrus.FieldLogger) *Scheduler {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultSchedulerConfig().CycleInterval
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		log:    logging.Component(logger, "scheduler"),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled. Ticks that arrive while a run is in
// progress are coalesced by the tickers.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.status.StartedAt = s.now()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"cycle_interval": s.cfg.CycleInterval.String(),
		"exit_interval":  s.cfg.ExitInterval.String(),
	}).Info("scheduler started")

	if s.cfg.RunOnStart {
		s.runCycle(ctx)
	}

	cycleTicker := time.NewTicker(s.cfg.CycleInterval)
	defer cycleTicker.Stop()

	var exitC <-chan time.Time
	if s.cfg.ExitInterval > 0 {
		exitTicker := time.NewTicker(s.cfg.ExitInterval)
		defer exitTicker.Stop()
		exitC = exitTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-cycleTicker.C:
			s.runCycle(ctx)
		case <-exitC:
			s.runExit(ctx)
		}
	}
}

// TriggerCycle runs a full cycle now. Returns ErrBusy if a run is in progress.
func (s *Scheduler) TriggerCycle(ctx context.Context) (*CycleReport, error) {
	if !s.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.cycleLocked(ctx)
}

// TriggerExitChecks runs an exit pass now. Returns ErrBusy if a run is in progress.
func (s *Scheduler) TriggerExitChecks(ctx context.Context) (ExitReport, error) {
	if !s.runMu.TryLock() {
		return ExitReport{}, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.exitLocked(ctx), nil
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Timer-driven runs wait for a manual run to finish rather than skipping.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_, _ = s.cycleLocked(ctx)
}

func (s *Scheduler) runExit(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.exitLocked(ctx)
}

func (s *Scheduler) cycleLocked(ctx context.Context) (*CycleReport, error) {
	start := s.begin(KindCycle)
	report, err := s.runner.RunCycle(ctx)
	dur := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			status = "cancelled"
		}
		s.log.WithError(err).Warn("cycle ended early")
	}
	observability.RecordRun(KindCycle, status, dur)

	s.mu.Lock()
	s.status.Running = false
	s.status.CurrentKind = ""
	s.status.Cycles++
	s.status.LastCycleAt = start
	s.status.LastCycle = report
	s.status.LastCycleErr = ""
	if err != nil {
		s.status.LastCycleErr = err.Error()
	}
	s.mu.Unlock()

	return report, err
}

func (s *Scheduler) exitLocked(ctx context.Context) ExitReport {
	start := s.begin(KindExit)
	report := s.runner.RunExitChecks(ctx)
	observability.RecordRun(KindExit, "ok", time.Since(start))

	if report.Closed > 0 || report.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"checked": report.Checked,
			"closed":  report.Closed,
			"failed":  report.Failed,
		}).Info("exit checks completed")
	}

	s.mu.Lock()
	s.status.Running = false
	s.status.CurrentKind = ""
	s.status.ExitPasses++
	s.status.LastExitAt = start
	s.status.LastExit = &report
	s.mu.Unlock()

	return report
}

func (s *Scheduler) begin(kind string) time.Time {
	start := s.now()
	s.mu.Lock()
	s.status.Running = true
	s.status.CurrentKind = kind
	s.mu.Unlock()
	return start
}
