package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

var _ Journal = (*CSVJournal)(nil)

// CSVJournal persists readings as an append-only CSV file. Rows are in arrival order;
// the series store sorts on load.
type CSVJournal struct {
	path string
	mu   sync.Mutex

	// write is swapped in tests to simulate short writes.
	write func(f *os.File, b []byte) (int, error)
}

// NewCSVJournal returns a journal backed by the file at path.
func NewCSVJournal(path string) *CSVJournal {
	return &CSVJournal{path: path}
}

func (j *CSVJournal) Load(ctx context.Context) ([]telemetry.Reading, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, j.create()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, j.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Zero-length file, e.g. a crash right after creation.
		return nil, j.create()
	}
	if err != nil {
		return nil, j.readErr("read header", err)
	}
	if !isHeader(head) {
		return nil, fmt.Errorf("%w: %s: unexpected header %v", ErrStoreCorrupt, j.path, head)
	}

	var readings []telemetry.Reading
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, j.readErr("read row", err)
		}
		reading, err := parseRecord(rec)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrStoreCorrupt, j.path, line, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// readErr tells a malformed file apart from one that cannot be read at all.
func (j *CSVJournal) readErr(op string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %s: %s: %v", ErrStoreCorrupt, j.path, op, err)
	}
	return fmt.Errorf("%w: %s: %s: %v", ErrStoreUnavailable, j.path, op, err)
}

// create writes an empty journal containing only the header.
func (j *CSVJournal) create() error {
	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(Header); err != nil {
		return err
	}
	cw.Flush()

	if err := os.WriteFile(j.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("create %s: %w", j.path, err)
	}
	return nil
}

// Append writes the batch with a single write followed by fsync.
func (j *CSVJournal) Append(ctx context.Context, readings []telemetry.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := writeRecords(cw, readings); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(j.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", j.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", j.path, err)
	}
	size := fi.Size()

	payload := buf.Bytes()
	unterminated, err := lacksTrailingNewline(f, size)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("read tail of %s: %w", j.path, err)
	}
	if unterminated {
		payload = append([]byte{'\n'}, payload...)
	}

	write := j.write
	if write == nil {
		write = (*os.File).Write
	}
	if _, err := write(f, payload); err != nil {
		return j.rollback(f, size, fmt.Errorf("write %s: %w", j.path, err))
	}
	if err := f.Sync(); err != nil {
		return j.rollback(f, size, fmt.Errorf("sync %s: %w", j.path, err))
	}
	return f.Close()
}

// rollback cuts the file back to size so a torn row never survives a failed append.
func (j *CSVJournal) rollback(f *os.File, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		cause = errors.Join(cause, fmt.Errorf("truncate %s: %w", j.path, err))
	}
	_ = f.Close()
	return cause
}

func lacksTrailingNewline(f *os.File, size int64) (bool, error) {
	if size == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (j *CSVJournal) Close() error {
	return nil
}
