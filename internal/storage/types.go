package storage

import (
	"errors"
	"time"
)

// ErrUnavailable marks transient backend failures (locked file, I/O error).
// Callers are expected to retry with backoff rather than give up.
var ErrUnavailable = errors.New("storage unavailable")

// Config configures the timer store.
//
// Driver values:
//   - "sqlite": SQLite database file (the normal deployment)
//   - "memory": process-local store, lost on restart (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TimerRecord is one pending timer row.
//
// Payload stays opaque bytes at this layer; encoding/decoding belongs to the
// timers package. Timestamps are UTC; ExpiresAt is the sort key and ties are
// broken by ascending ID (first created fires first).
type TimerRecord struct {
	ID        int64
	Event     string
	ExpiresAt time.Time
	CreatedAt time.Time
	Timezone  string
	Payload   []byte
}

// FiredEntry records one dispatch outcome for the audit trail.
// Keep it compact and schema-stable.
type FiredEntry struct {
	At         time.Time
	TimerID    int64
	Event      string
	DispatchID string
	OK         bool
	Error      string
	TookMS     int64
}
