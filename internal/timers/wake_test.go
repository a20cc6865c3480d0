package timers

import (
	"context"
	"testing"
	"time"
)

func TestWakeNotifyBeforeWait(t *testing.T) {
	t.Parallel()

	w := newWakeSignal()
	w.Notify()

	woken, err := w.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !woken {
		t.Fatal("expected a buffered notification to wake immediately")
	}
}

func TestWakeNotifyCoalesces(t *testing.T) {
	t.Parallel()

	w := newWakeSignal()
	w.Notify()
	w.Notify()
	w.Notify()

	if woken, _ := w.Wait(context.Background(), time.Second); !woken {
		t.Fatal("first wait should wake")
	}
	if woken, _ := w.Wait(context.Background(), 50*time.Millisecond); woken {
		t.Fatal("repeated notifications must coalesce into one wakeup")
	}
}

func TestWakeTimeout(t *testing.T) {
	t.Parallel()

	w := newWakeSignal()
	start := time.Now()
	woken, err := w.Wait(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if woken {
		t.Fatal("no notification was sent")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("wait returned after %v, before the deadline", elapsed)
	}
}

func TestWakeDuringSleep(t *testing.T) {
	t.Parallel()

	w := newWakeSignal()
	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Notify()
	}()

	start := time.Now()
	woken, err := w.Wait(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !woken {
		t.Fatal("expected notification to cut the sleep short")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("woke after %v, expected well under the deadline", elapsed)
	}
}

func TestWakeContextCancel(t *testing.T) {
	t.Parallel()

	w := newWakeSignal()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	// Negative duration: wait for a notification with no deadline.
	_, err := w.Wait(ctx, -1)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
