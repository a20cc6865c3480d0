package timers

import (
	"context"
	"time"
)

// wakeSignal lets Schedule and Cancel interrupt the dispatch loop's sleep.
// The one-slot buffer makes Notify non-blocking while guaranteeing that a
// notification sent while the loop is busy is not lost: the next Wait
// returns immediately.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

// Notify records that the pending-timer set changed. Idempotent: collapsing
// many notifications into one pending wakeup is fine because the loop
// re-reads the store on every wakeup anyway.
func (w *wakeSignal) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait sleeps until d elapses, a notification arrives, or ctx is done.
// woken reports whether a notification cut the sleep short. A negative d
// means wait for a notification with no deadline.
func (w *wakeSignal) Wait(ctx context.Context, d time.Duration) (woken bool, err error) {
	var timeout <-chan time.Time
	if d >= 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-w.ch:
		return true, nil
	case <-timeout:
		return false, nil
	}
}
