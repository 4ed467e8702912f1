// Package history persists the records of finished runs.
//
// A record is an opaque byte slice (dagflow writes a JSON encoded run result)
// filed under its graph id and run id. Three backends are provided:
// MemoryStore for tests, SQLiteStore for single-process deployments, and
// BadgerStore for an embedded key-value store. Open picks one from config.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/dagflow/pkg/dagflow/config"
)

// Store persists run records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the record for runID under graphID.
	// Saving an existing runID replaces it and moves it to the end of List.
	Save(graphID, runID string, data []byte) error

	// Load returns the record for runID, or ErrNotFound.
	Load(runID string) ([]byte, error)

	// List returns metadata for every record of graphID in save order.
	// An unknown graph yields an empty slice.
	List(graphID string) ([]Info, error)

	// Delete removes one record. Missing records are not an error.
	Delete(runID string) error

	// DeleteGraph removes every record of graphID.
	DeleteGraph(graphID string) error

	// Close releases resources. Later calls return ErrStoreClosed.
	Close() error
}

// Info describes a record without its payload.
type Info struct {
	GraphID   string    `json:"graph_id"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("run record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("history store closed")

	// ErrUnknownDriver indicates an unsupported driver name in config.
	ErrUnknownDriver = errors.New("unknown history driver")
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Open creates a store from config keys "driver" (memory, sqlite or badger,
// default memory) and "path". An empty path keeps sqlite and badger in memory.
func Open(cfg config.Config) (Store, error) {
	driver := cfg.String("driver", DriverMemory)
	path := cfg.String("path", "")

	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path)
	case DriverBadger:
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
