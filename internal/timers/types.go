package timers

import (
	"context"
	"time"
)

// Payload is the caller-defined data attached to a timer. It travels as JSON
// through the store, so values round-trip with encoding/json semantics:
// numbers come back as float64 and nested maps as map[string]any.
type Payload map[string]any

// Int64 reads an integer field out of a decoded payload, tolerating the
// float64 representation JSON decoding produces.
func (p Payload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// String reads a string field out of a decoded payload.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Timer is a scheduled event as seen by handlers and listing callers.
type Timer struct {
	ID        int64
	Event     string
	ExpiresAt time.Time
	CreatedAt time.Time
	Timezone  string
	Payload   Payload
}

// Handler consumes a fired timer. The context carries the per-invocation
// timeout; handlers doing slow work must honor it.
type Handler func(ctx context.Context, t Timer) error

// Config tunes the dispatch loop. Zero values select the defaults below.
type Config struct {
	// HandlerTimeout bounds a single handler invocation. Default 30s.
	HandlerTimeout time.Duration

	// MaxWait caps a single sleep of the dispatch loop. Deadlines further
	// out than this are slept toward in chunks, re-reading the store
	// between chunks. Default 40 days.
	MaxWait time.Duration

	// RetryBase and RetryMaxDelay shape the backoff applied when the store
	// returns a transient error. Defaults 500ms and 15s.
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 40 * 24 * time.Hour
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	return c
}

// TimerEvent is the Data attached to eventbus notifications published by the
// scheduler (scheduled, fired, cancelled, dropped, handler failures).
type TimerEvent struct {
	ID         int64     `json:"id"`
	Event      string    `json:"event"`
	ExpiresAt  time.Time `json:"expires_at"`
	DispatchID string    `json:"dispatch_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}
