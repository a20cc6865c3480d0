package timers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tickbot/internal/eventbus"
	"tickbot/internal/storage"
	"tickbot/pkg/logx"
)

func newTestService(t *testing.T, cfg Config) (*Service, storage.Store, eventbus.Bus) {
	t.Helper()
	st := storage.NewMemory()
	bus := eventbus.New()
	svc := New(cfg, st, logx.Nop(), bus)
	t.Cleanup(func() { _ = st.Close() })
	return svc, st, bus
}

func start(t *testing.T, svc *Service) {
	t.Helper()
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
}

// fireRecorder collects fired timers in arrival order.
type fireRecorder struct {
	mu    sync.Mutex
	fired []Timer
	ch    chan Timer
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan Timer, 16)}
}

func (r *fireRecorder) handle(_ context.Context, t Timer) error {
	r.mu.Lock()
	r.fired = append(r.fired, t)
	r.mu.Unlock()
	r.ch <- t
	return nil
}

func (r *fireRecorder) waitN(t *testing.T, n int, within time.Duration) []Timer {
	t.Helper()
	deadline := time.After(within)
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-deadline:
			t.Fatalf("only %d of %d timers fired within %v", i, n, within)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Timer, len(r.fired))
	copy(out, r.fired)
	return out
}

func TestScheduleAndFire(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("ping", rec.handle)
	start(t, svc)

	id, err := svc.Schedule(context.Background(), "ping", time.Now().Add(50*time.Millisecond),
		WithPayload(Payload{"text": "tea"}), WithTimezone("Europe/Berlin"))
	if err != nil {
		t.Fatal(err)
	}

	fired := rec.waitN(t, 1, 3*time.Second)
	got := fired[0]
	if got.ID != id {
		t.Errorf("fired id = %d, want %d", got.ID, id)
	}
	if got.Event != "ping" {
		t.Errorf("fired event = %q, want ping", got.Event)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q, want Europe/Berlin", got.Timezone)
	}
	if text, _ := got.Payload.String("text"); text != "tea" {
		t.Errorf("payload text = %q, want tea", text)
	}
}

func TestScheduleEmptyEvent(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	if _, err := svc.Schedule(context.Background(), "", time.Now()); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("err = %v, want ErrEmptyEvent", err)
	}
}

func TestPastDeadlineFiresPromptly(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("ping", rec.handle)
	start(t, svc)

	scheduled := time.Now()
	if _, err := svc.Schedule(context.Background(), "ping", scheduled.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	rec.waitN(t, 1, time.Second)
}

func TestFiringOrderWithTies(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("a", rec.handle)
	svc.On("b", rec.handle)

	// Schedule before Start so the loop sees all three at once. Two share a
	// deadline; insertion order must break the tie.
	base := time.Now().Add(-time.Minute)
	ctx := context.Background()
	id1, _ := svc.Schedule(ctx, "b", base.Add(2*time.Second))
	id2, _ := svc.Schedule(ctx, "a", base)
	id3, _ := svc.Schedule(ctx, "a", base)
	start(t, svc)

	fired := rec.waitN(t, 3, 3*time.Second)
	wantIDs := []int64{id2, id3, id1}
	for i, want := range wantIDs {
		if fired[i].ID != want {
			t.Errorf("fired[%d].ID = %d, want %d (full order %v)", i, fired[i].ID, want, fired)
		}
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("ping", rec.handle)
	start(t, svc)

	ctx := context.Background()
	id, err := svc.Schedule(ctx, "ping", time.Now().Add(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	removed, err := svc.Cancel(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("Cancel should report true for a pending timer")
	}

	select {
	case got := <-rec.ch:
		t.Fatalf("cancelled timer %d fired: %+v", id, got)
	case <-time.After(600 * time.Millisecond):
	}

	// Second cancel is a no-op, not an error.
	removed, err = svc.Cancel(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("second Cancel should report false")
	}
}

func TestEarlierTimerPreemptsSleep(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("near", rec.handle)
	svc.On("far", rec.handle)
	start(t, svc)

	ctx := context.Background()
	// The loop goes to sleep toward the distant deadline first.
	if _, err := svc.Schedule(ctx, "far", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	nearID, err := svc.Schedule(ctx, "near", time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	fired := rec.waitN(t, 1, 2*time.Second)
	if fired[0].ID != nearID {
		t.Fatalf("fired %d (%s), want the preempting timer %d", fired[0].ID, fired[0].Event, nearID)
	}
}

func TestOverdueTimersRecoverOnStart(t *testing.T) {
	t.Parallel()

	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	// Simulate rows persisted by an earlier process run.
	past := time.Now().Add(-time.Hour)
	id1, err := st.InsertTimer(ctx, storage.TimerRecord{
		Event: "ping", ExpiresAt: past, CreatedAt: past.Add(-time.Minute), Timezone: "UTC", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := st.InsertTimer(ctx, storage.TimerRecord{
		Event: "ping", ExpiresAt: past, CreatedAt: past.Add(-time.Minute), Timezone: "UTC", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := New(Config{}, st, logx.Nop(), nil)
	rec := newFireRecorder()
	svc.On("ping", rec.handle)
	start(t, svc)

	fired := rec.waitN(t, 2, 2*time.Second)
	if fired[0].ID != id1 || fired[1].ID != id2 {
		t.Fatalf("recovery order = [%d %d], want [%d %d]", fired[0].ID, fired[1].ID, id1, id2)
	}

	// Fired rows must be gone from the store.
	if left, err := svc.Pending(ctx, "ping", 0); err != nil || len(left) != 0 {
		t.Fatalf("Pending after recovery = %v, %v; want empty", left, err)
	}
}

func TestInterleavedScheduleAndCancelScenario(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	rec := newFireRecorder()
	svc.On("a", rec.handle)
	svc.On("b", rec.handle)
	start(t, svc)

	// Three timers created out of deadline order, then the latest cancelled
	// before it can fire.
	ctx := context.Background()
	now := time.Now()
	a2, err := svc.Schedule(ctx, "a", now.Add(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	b1, err := svc.Schedule(ctx, "b", now.Add(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	a5, err := svc.Schedule(ctx, "a", now.Add(800*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if removed, err := svc.Cancel(ctx, a5); err != nil || !removed {
		t.Fatalf("cancel a5: removed=%v err=%v", removed, err)
	}

	fired := rec.waitN(t, 2, 3*time.Second)
	if fired[0].ID != b1 || fired[1].ID != a2 {
		t.Fatalf("firing order = [%d %d], want [%d %d]", fired[0].ID, fired[1].ID, b1, a2)
	}

	select {
	case got := <-rec.ch:
		t.Fatalf("cancelled timer fired: %+v", got)
	case <-time.After(time.Second):
	}
}

func TestPendingListsInFiringOrder(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	late, _ := svc.Schedule(ctx, "ping", time.Now().Add(2*time.Hour), WithPayload(Payload{"n": 2}))
	soon, _ := svc.Schedule(ctx, "ping", time.Now().Add(time.Hour), WithPayload(Payload{"n": 1}))
	if _, err := svc.Schedule(ctx, "other", time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Pending(ctx, "ping", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Pending returned %d timers, want 2", len(got))
	}
	if got[0].ID != soon || got[1].ID != late {
		t.Errorf("order = [%d %d], want [%d %d]", got[0].ID, got[1].ID, soon, late)
	}
	if n, _ := got[0].Payload.Int64("n"); n != 1 {
		t.Errorf("payload n = %d, want 1", n)
	}
}
