package storage

import (
	"context"
	"time"

	"rosterbot/internal/roster"
	"rosterbot/internal/transport"
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (three small JSON/text files)
//   - "sqlite": SQLite database file
//   - "memory": process-local only (state does not survive restarts)
//
// If Driver is empty, "file" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the reconciler and maintenance.
//
// The three records are independently keyed; a missing record is reported via
// the ok return, not an error. Implementations must be safe for concurrent
// use (the scheduler worker and the janitor may overlap).
type Store interface {
	MessageRef(ctx context.Context) (ref transport.MessageRef, ok bool, err error)
	SaveMessageRef(ctx context.Context, ref transport.MessageRef) error

	RenderedText(ctx context.Context) (text string, ok bool, err error)
	SaveRenderedText(ctx context.Context, text string) error

	Cancellation(ctx context.Context, week string) (c roster.Cancellation, ok bool, err error)
	SaveCancellation(ctx context.Context, week string, c roster.Cancellation) error

	// PruneCancellations removes cancellation records for weeks strictly
	// before the given week key and reports how many were removed.
	PruneCancellations(ctx context.Context, before string) (int, error)

	Close() error
}
