package store

import "fmt"

// Backend names accepted by OpenJournal.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// OpenJournal opens the durable medium for backend at path.
func OpenJournal(backend, path string) (Journal, error) {
	switch backend {
	case BackendCSV, "":
		return NewCSVJournal(path), nil
	case BackendSQLite:
		return OpenSQLiteJournal(path)
	case BackendBadger:
		return OpenBadgerJournal(path)
	case BackendMemory:
		return NewMemoryJournal(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
