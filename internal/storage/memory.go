package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-process Store with the same ordering semantics as the
// sqlite driver. It backs tests and "dry run" deployments; nothing survives
// a restart.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	timers map[int64]TimerRecord
	fired  []FiredEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{nextID: 1, timers: map[int64]TimerRecord{}}
}

func (s *memStore) InsertTimer(_ context.Context, rec TimerRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(rec.Timezone) == "" {
		rec.Timezone = "UTC"
	}
	if len(rec.Payload) == 0 {
		rec.Payload = []byte("{}")
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	// Copy payload so callers can't mutate stored state.
	rec.Payload = append([]byte(nil), rec.Payload...)

	s.timers[rec.ID] = rec
	return rec.ID, nil
}

func (s *memStore) DeleteTimer(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; !ok {
		return false, nil
	}
	delete(s.timers, id)
	return true, nil
}

func (s *memStore) EarliestTimer(_ context.Context) (*TimerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *TimerRecord
	for id := range s.timers {
		rec := s.timers[id]
		if best == nil || earlier(rec, *best) {
			cp := rec
			best = &cp
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	cp.Payload = append([]byte(nil), best.Payload...)
	return &cp, nil
}

func (s *memStore) ListTimers(_ context.Context, event string, limit int) ([]TimerRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TimerRecord, 0, 8)
	for _, rec := range s.timers {
		if rec.Event != event {
			continue
		}
		cp := rec
		cp.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) AppendFired(_ context.Context, e FiredEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	s.fired = append(s.fired, e)
	s.mu.Unlock()
	return nil
}

func (s *memStore) PruneFired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.fired[:0]
	var removed int64
	for _, e := range s.fired {
		if e.At.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.fired = kept
	return removed, nil
}

func (s *memStore) Checkpoint(context.Context) error { return nil }

func (s *memStore) Close() error { return nil }

// earlier implements the store ordering: expires_at, ties by id.
func earlier(a, b TimerRecord) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	return a.ID < b.ID
}
