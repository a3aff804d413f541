package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

const defaultInterval = 30 * time.Second

// CycleRunner runs one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) telemetry.CycleSummary
}

// BackoffConfig controls retries of failed cycles.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Scheduler periodically runs ingestion cycles.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	interval  time.Duration
	timeout   time.Duration
	backoff   BackoffConfig
	logger    *zap.Logger
}

// New creates a new Scheduler. Each run gets timeout to complete, retries included.
func New(runner CycleRunner, interval, timeout time.Duration, backoff BackoffConfig) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
		backoff:   backoff,
		logger:    zap.L(),
	}
}

// Start schedules the periodic job, runs it once right away and returns.
// SingletonMode keeps a slow run from being overlapped by the next tick.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		s.runWithRetry(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// runWithRetry runs a cycle and retries it with exponential backoff while it fails
// with a retryable error.
func (s *Scheduler) runWithRetry(ctx context.Context) telemetry.CycleSummary {
	var attempt int
	for {
		summary := s.runner.RunCycle(ctx)
		if !summary.Failed() || !telemetry.Retryable(summary.Err) {
			return summary
		}
		if attempt >= s.backoff.MaxRetries || s.backoff.InitialInterval <= 0 {
			return summary
		}

		delay := s.backoff.InitialInterval << attempt
		if s.backoff.MaxInterval > 0 && delay > s.backoff.MaxInterval {
			delay = s.backoff.MaxInterval
		}
		s.logger.Warn("retrying ingestion cycle",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(summary.Err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return summary
		case <-timer.C:
		}
		attempt++
	}
}
