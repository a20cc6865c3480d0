package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tickbot/pkg/logx"
)

// both drivers must satisfy the same contract; every test below runs against
// the sqlite file store and the in-memory store.
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	drivers := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"sqlite", func(t *testing.T) Store {
			st, err := Open(Config{
				Driver: "sqlite",
				Path:   filepath.Join(t.TempDir(), "timers.db"),
			}, logx.Nop())
			if err != nil {
				t.Fatal(err)
			}
			return st
		}},
		{"memory", func(t *testing.T) Store { return NewMemory() }},
	}
	for _, d := range drivers {
		d := d
		t.Run(d.name, func(t *testing.T) {
			t.Parallel()
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })
			fn(t, st)
		})
	}
}

func mustInsert(t *testing.T, st Store, rec TimerRecord) int64 {
	t.Helper()
	id, err := st.InsertTimer(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestInsertAppliesDefaults(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		before := time.Now().UTC().Add(-time.Second)
		id := mustInsert(t, st, TimerRecord{
			Event:     "ping",
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if id <= 0 {
			t.Fatalf("id = %d, want positive", id)
		}

		rec, err := st.EarliestTimer(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil {
			t.Fatal("EarliestTimer returned nil after insert")
		}
		if rec.Timezone != "UTC" {
			t.Errorf("timezone = %q, want UTC default", rec.Timezone)
		}
		if string(rec.Payload) != "{}" {
			t.Errorf("payload = %q, want {} default", rec.Payload)
		}
		if rec.CreatedAt.Before(before) {
			t.Errorf("created_at = %v, want recent", rec.CreatedAt)
		}
	})
}

func TestEarliestOrderingAndTies(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

		late := mustInsert(t, st, TimerRecord{Event: "a", ExpiresAt: base.Add(time.Minute)})
		tie1 := mustInsert(t, st, TimerRecord{Event: "a", ExpiresAt: base})
		tie2 := mustInsert(t, st, TimerRecord{Event: "b", ExpiresAt: base})

		// Ties break toward the smaller id.
		for _, want := range []int64{tie1, tie2, late} {
			rec, err := st.EarliestTimer(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if rec == nil || rec.ID != want {
				t.Fatalf("earliest = %+v, want id %d", rec, want)
			}
			if removed, err := st.DeleteTimer(ctx, rec.ID); err != nil || !removed {
				t.Fatalf("delete %d: removed=%v err=%v", rec.ID, removed, err)
			}
		}

		rec, err := st.EarliestTimer(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			t.Fatalf("earliest on empty store = %+v, want nil", rec)
		}
	})
}

func TestDeleteTimerReportsRemoval(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		id := mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: time.Now()})

		removed, err := st.DeleteTimer(ctx, id)
		if err != nil || !removed {
			t.Fatalf("first delete: removed=%v err=%v, want true, nil", removed, err)
		}
		removed, err = st.DeleteTimer(ctx, id)
		if err != nil || removed {
			t.Fatalf("second delete: removed=%v err=%v, want false, nil", removed, err)
		}
	})
}

func TestExpiryRoundTripsToMilliseconds(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		at := time.Date(2026, 9, 1, 12, 0, 0, 123_000_000, time.UTC)
		mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: at})

		rec, err := st.EarliestTimer(ctx)
		if err != nil || rec == nil {
			t.Fatalf("earliest: %v, %v", rec, err)
		}
		if !rec.ExpiresAt.Equal(at.Truncate(time.Millisecond)) {
			t.Errorf("expires_at = %v, want %v", rec.ExpiresAt, at)
		}
	})
}

func TestListTimersFiltersAndLimits(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Now().Add(time.Hour)

		id3 := mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: base.Add(3 * time.Minute)})
		id1 := mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: base.Add(time.Minute)})
		id2 := mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: base.Add(2 * time.Minute)})
		mustInsert(t, st, TimerRecord{Event: "other", ExpiresAt: base})

		got, err := st.ListTimers(ctx, "ping", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("listed %d timers, want 3", len(got))
		}
		for i, want := range []int64{id1, id2, id3} {
			if got[i].ID != want {
				t.Errorf("got[%d].ID = %d, want %d", i, got[i].ID, want)
			}
		}

		got, err = st.ListTimers(ctx, "ping", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != id1 || got[1].ID != id2 {
			t.Errorf("limited list = %v, want first two in firing order", got)
		}
	})
}

func TestFiredAuditAppendAndPrune(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		entries := []FiredEntry{
			{At: now.Add(-48 * time.Hour), TimerID: 1, Event: "ping", DispatchID: "d1", OK: true, TookMS: 3},
			{At: now.Add(-47 * time.Hour), TimerID: 2, Event: "ping", DispatchID: "d2", OK: false, Error: "kaput", TookMS: 7},
			{At: now, TimerID: 3, Event: "ping", DispatchID: "d3", OK: true, TookMS: 1},
		}
		for _, e := range entries {
			if err := st.AppendFired(ctx, e); err != nil {
				t.Fatal(err)
			}
		}

		n, err := st.PruneFired(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("pruned %d rows, want 2", n)
		}

		// A second prune with the same cutoff removes nothing.
		n, err = st.PruneFired(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("second prune removed %d rows, want 0", n)
		}
	})
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, st Store) {
		mustInsert(t, st, TimerRecord{Event: "ping", ExpiresAt: time.Now().Add(time.Hour)})
		if err := st.Checkpoint(context.Background()); err != nil {
			t.Fatal(err)
		}
	})
}
