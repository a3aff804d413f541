package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Service is the ingestion coordinator. It is the seam between the feed and the
// store and the only entry point the presentation layer uses.
type Service struct {
	store    Store
	feed     Feed
	clock    Clock
	logger   *zap.Logger
	inflight *semaphore.Weighted
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the clock used to stamp records without a timestamp.
func WithClock(c Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger replaces the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a new Service.
func NewService(store Store, feed Feed, opts ...Option) *Service {
	s := &Service{
		store:    store,
		feed:     feed,
		clock:    SystemClock,
		logger:   zap.L(),
		inflight: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle fetches from upstream, normalizes the records and merges them into the
// store. Cycles are serialized: a second caller waits until the running cycle ends
// or its own context is done. Failures are reported in the summary and never leave
// the store partially written.
func (s *Service) RunCycle(ctx context.Context) CycleSummary {
	summary := CycleSummary{
		ID:        uuid.NewString(),
		StartedAt: s.clock.Now(),
	}
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		s.logCycle(summary)
	}()

	if err := s.inflight.Acquire(ctx, 1); err != nil {
		summary.Err = fmt.Errorf("waiting for running cycle: %w", err)
		return summary
	}
	defer s.inflight.Release(1)

	raws, err := s.feed.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrEmptyUpstream) {
			return summary
		}
		summary.Err = fmt.Errorf("fetch: %w", err)
		return summary
	}
	summary.Fetched = len(raws)

	readings, skipped := Normalize(raws, s.clock.Now())
	summary.Skipped = skipped
	if len(readings) == 0 {
		return summary
	}

	res, err := s.store.Merge(ctx, readings)
	if err != nil {
		summary.Err = fmt.Errorf("merge: %w", err)
		return summary
	}
	summary.Inserted = res.Inserted
	summary.Duplicates = res.Duplicates
	return summary
}

func (s *Service) logCycle(summary CycleSummary) {
	fields := []zap.Field{
		zap.String("cycle_id", summary.ID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("inserted", summary.Inserted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	}
	if summary.Err != nil {
		s.logger.Error("ingestion cycle failed", append(fields, zap.Error(summary.Err))...)
		return
	}
	s.logger.Info("ingestion cycle completed", fields...)
}

// Latest delegates to the underlying store.
func (s *Service) Latest() (Reading, error) {
	return s.store.Latest()
}

// All delegates to the underlying store.
func (s *Service) All() []Reading {
	return s.store.All()
}

// Range delegates to the underlying store.
func (s *Service) Range(from, to time.Time) ([]Reading, error) {
	return s.store.Range(from, to)
}

// Count delegates to the underlying store.
func (s *Service) Count() int {
	return s.store.Count()
}

// Export delegates to the underlying store.
func (s *Service) Export(w io.Writer) error {
	return s.store.Export(w)
}
