package store

import (
	"context"
	"slices"
	"sync"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

var _ Journal = (*MemoryJournal)(nil)

// MemoryJournal keeps readings in process memory. Nothing survives a restart.
type MemoryJournal struct {
	mu       sync.Mutex
	readings []telemetry.Reading
}

// NewMemoryJournal creates a journal pre-populated with readings.
func NewMemoryJournal(readings ...telemetry.Reading) *MemoryJournal {
	return &MemoryJournal{readings: slices.Clone(readings)}
}

func (j *MemoryJournal) Load(context.Context) ([]telemetry.Reading, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.readings), nil
}

func (j *MemoryJournal) Append(ctx context.Context, readings []telemetry.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.readings = append(j.readings, readings...)
	return nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
