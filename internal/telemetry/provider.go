package telemetry

import (
	"context"
	"io"
	"time"
)

// Feed abstracts the remote sensor API.
type Feed interface {
	Fetch(ctx context.Context) ([]RawReading, error)
}

// Store is the contract the series store must satisfy. Merge is the only mutating call.
type Store interface {
	Merge(ctx context.Context, readings []Reading) (MergeResult, error)
	Latest() (Reading, error)
	All() []Reading
	Range(from, to time.Time) ([]Reading, error)
	Count() int
	Export(w io.Writer) error
}
