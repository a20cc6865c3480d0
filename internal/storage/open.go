package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "tickbot/pkg/logx"
)

// Store is the persistence contract the scheduler core runs against.
//
// InsertTimer, DeleteTimer and EarliestTimer are the three operations the
// dispatch loop depends on; the rest serve consumers (listing) and
// housekeeping (audit, prune, checkpoint).
type Store interface {
	// InsertTimer persists a new timer and returns its assigned id.
	// Identical expiries are fine; ordering ties are broken by id.
	InsertTimer(ctx context.Context, rec TimerRecord) (int64, error)

	// DeleteTimer removes a timer by id. The bool reports whether a row was
	// actually removed; false is NOT an error (cancel racing a fire is
	// expected and resolved by whoever deleted the row).
	DeleteTimer(ctx context.Context, id int64) (bool, error)

	// EarliestTimer returns the pending timer with the smallest
	// (expires_at, id), or nil if the store is empty.
	EarliestTimer(ctx context.Context) (*TimerRecord, error)

	// ListTimers returns pending timers for one event, soonest first.
	// limit <= 0 means a sane default cap.
	ListTimers(ctx context.Context, event string, limit int) ([]TimerRecord, error)

	AppendFired(ctx context.Context, e FiredEntry) error
	PruneFired(ctx context.Context, before time.Time) (int64, error)

	// Checkpoint performs driver-specific compaction (sqlite: WAL checkpoint).
	Checkpoint(ctx context.Context) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
