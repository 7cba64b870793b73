package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/quorum/cluster"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseSchedule parses a UTC cron expression for the optimizer schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("daemon: cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("daemon: cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("daemon: invalid cron expression: %w", err)
	}
	return schedule, nil
}

// SchedulerConfig configures the background optimizer schedule runner.
type SchedulerConfig struct {
	Optimizer *cluster.Optimizer
	Schedule  string
	Now       func() time.Time
	Logger    *slog.Logger
}

// Scheduler runs optimizer passes on a cron schedule. Pass execution is
// single-owner: the optimizer itself rejects overlapping runs, and the
// scheduler treats that as a skipped tick rather than a failure.
type Scheduler struct {
	optimizer *cluster.Optimizer
	schedule  cron.Schedule
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Optimizer == nil {
		return nil, errors.New("daemon: scheduler optimizer is nil")
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		optimizer: cfg.Optimizer,
		schedule:  schedule,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Start begins running passes at each scheduled tick. Calling Start on
// a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			next := s.schedule.Next(s.now())
			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.runOnce(loopCtx)
		}
	}()
}

// Stop halts the schedule and waits for an in-flight pass to finish or
// the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	sum, err := s.optimizer.Run(ctx)
	switch {
	case errors.Is(err, cluster.ErrPassInProgress):
		s.logger.Info("optimizer pass skipped, previous pass still running")
	case errors.Is(err, context.Canceled):
	case err != nil:
		s.logger.Error("optimizer pass failed", "error", err)
	default:
		s.logger.Info("optimizer pass finished",
			"pass_id", sum.PassID,
			"iterations", sum.Iterations,
			"clusters", sum.Clusters,
			"transitions", sum.Transitions,
			"converged", sum.Converged,
			"elapsed", sum.Elapsed,
		)
	}
}
