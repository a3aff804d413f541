package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

var (
	// ErrNotFound is returned when no reading matches a query.
	ErrNotFound = errors.New("no readings stored")
	// ErrStoreCorrupt is returned when the durable medium exists but cannot be parsed.
	ErrStoreCorrupt = errors.New("series store corrupt")
	// ErrStoreUnavailable is returned when the durable medium exists but cannot be read.
	ErrStoreUnavailable = errors.New("series store unavailable")
)

var _ telemetry.Store = (*SeriesStore)(nil)

// Journal is the durable medium behind a SeriesStore.
type Journal interface {
	// Load returns every persisted reading. An absent medium is created empty and
	// yields no readings; an unparseable one yields ErrStoreCorrupt.
	Load(ctx context.Context) ([]telemetry.Reading, error)
	// Append persists a batch of readings whose timestamps are not yet stored.
	// Either the whole batch is persisted or an error is returned.
	Append(ctx context.Context, readings []telemetry.Reading) error
	Close() error
}

// SeriesStore is the deduplicated, time-ordered series of readings.
//
// Readers work on an immutable published view and never take a lock. Merge builds
// the next view and publishes it only after the journal accepted the batch, so a
// reader sees either the whole batch or none of it.
type SeriesStore struct {
	journal Journal
	logger  *zap.Logger

	mu    sync.Mutex // serializes writers
	index map[int64]struct{}

	view *atomic.Pointer[[]telemetry.Reading]
}

// Open loads the journal and builds the in-memory index.
func Open(ctx context.Context, journal Journal) (*SeriesStore, error) {
	readings, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}

	s := &SeriesStore{
		journal: journal,
		logger:  zap.L(),
		index:   make(map[int64]struct{}, len(readings)),
	}

	sorted := sortReadings(readings)
	view := make([]telemetry.Reading, 0, len(sorted))
	for _, r := range sorted {
		if !telemetry.Representable(r.Timestamp) {
			return nil, fmt.Errorf("%w: timestamp %s outside storable range", ErrStoreCorrupt, r.Timestamp.UTC().Format(time.RFC3339))
		}
		if _, dup := s.index[r.Key()]; dup {
			s.logger.Warn("dropping duplicate timestamp found in journal",
				zap.String("timestamp", telemetry.FormatTimestamp(r.Timestamp)))
			continue
		}
		s.index[r.Key()] = struct{}{}
		view = append(view, r)
	}
	s.view = atomic.NewPointer(&view)

	s.logger.Info("series store opened", zap.Int("readings", len(view)))
	return s, nil
}

// Close closes the underlying journal.
func (s *SeriesStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.Close()
}

// Merge adds every reading whose timestamp is not stored yet and counts the rest as
// duplicates. Stored readings are never overwritten. A batch holding a timestamp
// outside the representable range is rejected as a whole.
func (s *SeriesStore) Merge(ctx context.Context, readings []telemetry.Reading) (telemetry.MergeResult, error) {
	for _, r := range readings {
		if !telemetry.Representable(r.Timestamp) {
			return telemetry.MergeResult{}, fmt.Errorf("%w: timestamp %s outside storable range",
				telemetry.ErrMalformedRecord, r.Timestamp.UTC().Format(time.RFC3339))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res telemetry.MergeResult
	fresh := make([]telemetry.Reading, 0, len(readings))
	batch := make(map[int64]struct{}, len(readings))
	for _, r := range readings {
		key := r.Key()
		_, stored := s.index[key]
		_, seen := batch[key]
		if stored || seen {
			res.Duplicates++
			continue
		}
		batch[key] = struct{}{}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return telemetry.MergeResult{}, err
	}

	fresh = sortReadings(fresh)
	if err := s.journal.Append(ctx, fresh); err != nil {
		return telemetry.MergeResult{}, fmt.Errorf("append to journal: %w", err)
	}

	next := mergeSorted(*s.view.Load(), fresh)
	s.view.Store(&next)
	for key := range batch {
		s.index[key] = struct{}{}
	}

	res.Inserted = len(fresh)
	return res, nil
}

// Latest returns the reading with the greatest timestamp.
func (s *SeriesStore) Latest() (telemetry.Reading, error) {
	view := *s.view.Load()
	if len(view) == 0 {
		return telemetry.Reading{}, ErrNotFound
	}
	return view[len(view)-1], nil
}

// All returns a copy of the full series in ascending timestamp order.
func (s *SeriesStore) All() []telemetry.Reading {
	return slices.Clone(*s.view.Load())
}

// Range returns the readings between from and to (inclusive).
func (s *SeriesStore) Range(from, to time.Time) ([]telemetry.Reading, error) {
	view := *s.view.Load()

	lo := sort.Search(len(view), func(i int) bool {
		return !view[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(view), func(i int) bool {
		return view[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil, ErrNotFound
	}
	return slices.Clone(view[lo:hi]), nil
}

// Count returns the number of stored readings.
func (s *SeriesStore) Count() int {
	return len(*s.view.Load())
}

// Export writes the full series as CSV.
func (s *SeriesStore) Export(w io.Writer) error {
	return WriteCSV(w, *s.view.Load())
}

func sortReadings(readings []telemetry.Reading) []telemetry.Reading {
	out := slices.Clone(readings)
	slices.SortStableFunc(out, func(a, b telemetry.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// mergeSorted merges two ascending slices into a new one.
func mergeSorted(a, b []telemetry.Reading) []telemetry.Reading {
	out := make([]telemetry.Reading, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Timestamp.Before(a[i].Timestamp) {
			out = append(out, b[j])
			j++
			continue
		}
		out = append(out, a[i])
		i++
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
