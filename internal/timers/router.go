package timers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tickbot/internal/eventbus"
	"tickbot/pkg/logx"
)

// router maps event names to their registered handlers and runs each fired
// timer through them with the per-invocation timeout.
type router struct {
	timeout time.Duration
	log     logx.Logger
	bus     eventbus.Bus

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newRouter(timeout time.Duration, log logx.Logger, bus eventbus.Bus) *router {
	return &router{
		timeout:  timeout,
		log:      log,
		bus:      bus,
		handlers: make(map[string][]Handler),
	}
}

func (r *router) register(event string, h Handler) {
	if event == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

func (r *router) handlersFor(event string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handlers[event]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// route delivers t to every handler registered for its event, in registration
// order. A failing handler never stops the remaining ones; the first failure
// is returned for the audit record. A timer with no handlers is dropped with
// a warning, not an error; handled reports whether anyone received it.
func (r *router) route(ctx context.Context, dispatchID string, t Timer) (handled bool, _ error) {
	hs := r.handlersFor(t.Event)
	if len(hs) == 0 {
		r.log.Warn("no handler registered, dropping timer",
			logx.String("event", t.Event),
			logx.Int64("timer_id", t.ID),
			logx.String("dispatch_id", dispatchID))
		r.publish(eventbus.TopicTimerDropped, t, dispatchID, "no handler registered")
		return false, nil
	}

	var firstErr error
	for i, h := range hs {
		if err := r.invoke(ctx, h, t); err != nil {
			r.log.Error("timer handler failed",
				logx.String("event", t.Event),
				logx.Int64("timer_id", t.ID),
				logx.String("dispatch_id", dispatchID),
				logx.Int("handler", i),
				logx.Err(err))
			r.publish(eventbus.TopicHandlerFailed, t, dispatchID, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return true, firstErr
}

// invoke runs one handler in its own goroutine so a handler that ignores its
// context cannot wedge the dispatch loop.
func (r *router) invoke(ctx context.Context, h Handler, t Timer) error {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("handler panic: %v", p)
			}
		}()
		done <- h(hctx, t)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		// The goroutine keeps running; surface its eventual result so a
		// stuck handler is at least visible in the logs.
		go func() {
			err := <-done
			r.log.Warn("handler finished after deadline",
				logx.String("event", t.Event),
				logx.Int64("timer_id", t.ID),
				logx.Err(err))
		}()
		return fmt.Errorf("handler timed out after %s: %w", r.timeout, hctx.Err())
	}
}

func (r *router) publish(topic string, t Timer, dispatchID, errText string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Type: topic,
		Time: time.Now(),
		Data: TimerEvent{
			ID:         t.ID,
			Event:      t.Event,
			ExpiresAt:  t.ExpiresAt,
			DispatchID: dispatchID,
			Error:      errText,
		},
	})
}
