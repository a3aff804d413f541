package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

var _ Journal = (*BadgerJournal)(nil)

// BadgerJournal persists readings in BadgerDB. Keys are order-preserving encodings of
// the timestamp, so iteration yields the series already sorted.
type BadgerJournal struct {
	db *badger.DB
}

type badgerValue struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// OpenBadgerJournal opens the database directory at path. An empty path keeps the
// data in memory only.
func OpenBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(true)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening BadgerDB: %v", ErrStoreUnavailable, err)
	}
	return &BadgerJournal{db: db}, nil
}

func (j *BadgerJournal) Load(ctx context.Context) ([]telemetry.Reading, error) {
	var out []telemetry.Reading
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if len(key) != 8 {
				return fmt.Errorf("%w: unexpected key length %d", ErrStoreCorrupt, len(key))
			}

			var v badgerValue
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return fmt.Errorf("%w: decode value: %v", ErrStoreCorrupt, err)
			}

			out = append(out, telemetry.Reading{
				Timestamp:   decodeKey(key),
				Temperature: v.Temperature,
				Humidity:    v.Humidity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append writes the batch in one transaction.
func (j *BadgerJournal) Append(ctx context.Context, readings []telemetry.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		for _, r := range readings {
			val, err := json.Marshal(badgerValue{Temperature: r.Temperature, Humidity: r.Humidity})
			if err != nil {
				return err
			}
			if err := txn.Set(encodeKey(r.Timestamp), val); err != nil {
				return fmt.Errorf("error storing reading: %w", err)
			}
		}
		return nil
	})
}

func (j *BadgerJournal) Close() error {
	return j.db.Close()
}

// encodeKey flips the sign bit so that big-endian byte order matches time order,
// including timestamps before 1970.
func encodeKey(t time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano())^(1<<63))
	return key
}

func decodeKey(key []byte) time.Time {
	n := int64(binary.BigEndian.Uint64(key) ^ (1 << 63))
	return time.Unix(0, n).UTC()
}
