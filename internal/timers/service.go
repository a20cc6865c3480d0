package timers

import (
	"context"
	"fmt"
	"time"

	"tickbot/internal/eventbus"
	"tickbot/internal/runtime/supervisor"
	"tickbot/internal/storage"
	"tickbot/pkg/logx"
)

// Service owns the timer store access and the dispatch loop. Construct with
// New, register handlers with On before Start, then Schedule/Cancel freely
// from any goroutine.
type Service struct {
	cfg    Config
	log    logx.Logger
	store  storage.Store
	bus    eventbus.Bus
	router *router
	wake   *wakeSignal

	sup *supervisor.Supervisor
}

func New(cfg Config, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:    cfg,
		log:    log,
		store:  store,
		bus:    bus,
		router: newRouter(cfg.HandlerTimeout, log, bus),
		wake:   newWakeSignal(),
	}
}

// On registers a handler for an event name. Multiple handlers per event are
// allowed and run in registration order.
func (s *Service) On(event string, h Handler) {
	s.router.register(event, h)
}

// ScheduleOption customizes a scheduled timer.
type ScheduleOption func(*scheduleOpts)

type scheduleOpts struct {
	tz      string
	created time.Time
	payload Payload
}

// WithTimezone records the creator's IANA timezone alongside the timer so
// handlers can format times in the creator's locale. Default "UTC".
func WithTimezone(tz string) ScheduleOption {
	return func(o *scheduleOpts) { o.tz = tz }
}

// WithPayload attaches caller data to the timer.
func WithPayload(p Payload) ScheduleOption {
	return func(o *scheduleOpts) { o.payload = p }
}

// WithCreated overrides the creation timestamp, normally now. Useful when
// re-scheduling work whose logical origin is in the past.
func WithCreated(t time.Time) ScheduleOption {
	return func(o *scheduleOpts) { o.created = t }
}

// Schedule persists a timer firing event at when and returns its id. The
// timer is durable once Schedule returns; a deadline already in the past is
// legal and fires on the next loop iteration.
func (s *Service) Schedule(ctx context.Context, event string, when time.Time, opts ...ScheduleOption) (int64, error) {
	if event == "" {
		return 0, ErrEmptyEvent
	}
	o := scheduleOpts{tz: "UTC", created: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tz == "" {
		o.tz = "UTC"
	}

	raw, err := encodePayload(o.payload)
	if err != nil {
		return 0, err
	}
	id, err := s.store.InsertTimer(ctx, storage.TimerRecord{
		Event:     event,
		ExpiresAt: when.UTC(),
		CreatedAt: o.created.UTC(),
		Timezone:  o.tz,
		Payload:   raw,
	})
	if err != nil {
		return 0, fmt.Errorf("schedule timer: %w", err)
	}

	s.log.Debug("timer scheduled",
		logx.Int64("timer_id", id),
		logx.String("event", event),
		logx.Time("expires_at", when.UTC()))
	s.publish(eventbus.TopicTimerScheduled, TimerEvent{ID: id, Event: event, ExpiresAt: when.UTC()})

	// Wake unconditionally. Comparing against the loop's current deadline
	// here would race with it anyway, and a spurious wakeup only costs one
	// store query.
	s.wake.Notify()
	return id, nil
}

// Cancel deletes a pending timer. It reports true if this call removed the
// timer, false if it had already fired or was already cancelled. A cancelled
// timer's handlers are never invoked for it.
func (s *Service) Cancel(ctx context.Context, id int64) (bool, error) {
	removed, err := s.store.DeleteTimer(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel timer: %w", err)
	}
	if removed {
		s.log.Debug("timer cancelled", logx.Int64("timer_id", id))
		s.publish(eventbus.TopicTimerCancelled, TimerEvent{ID: id})
		// The loop may be sleeping toward the deadline we just removed.
		s.wake.Notify()
	}
	return removed, nil
}

// Pending lists timers for one event name in firing order, soonest first.
// limit <= 0 selects the store's default cap. Rows whose payload fails to
// decode are skipped
// with a log entry rather than failing the whole listing.
func (s *Service) Pending(ctx context.Context, event string, limit int) ([]Timer, error) {
	recs, err := s.store.ListTimers(ctx, event, limit)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	out := make([]Timer, 0, len(recs))
	for _, rec := range recs {
		p, derr := decodePayload(rec.Payload)
		if derr != nil {
			s.log.Warn("skipping timer with corrupt payload in listing",
				logx.Int64("timer_id", rec.ID), logx.Err(derr))
			continue
		}
		out = append(out, Timer{
			ID:        rec.ID,
			Event:     rec.Event,
			ExpiresAt: rec.ExpiresAt,
			CreatedAt: rec.CreatedAt,
			Timezone:  rec.Timezone,
			Payload:   p,
		})
	}
	return out, nil
}

// Start verifies the store is reachable and launches the dispatch loop.
// An unreachable store is fatal here: running the process without its
// scheduler would silently strand every persisted timer.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.store.EarliestTimer(ctx); err != nil {
		return fmt.Errorf("timer store unreachable: %w", err)
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.Go("timers.dispatch", s.run)
	s.log.Info("timer dispatch loop started",
		logx.Duration("handler_timeout", s.cfg.HandlerTimeout),
		logx.Duration("max_wait", s.cfg.MaxWait))
	return nil
}

// Stop cancels the dispatch loop and waits for it to exit. In-flight handler
// goroutines respect their own timeout context and are not waited for.
func (s *Service) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	return s.sup.Stop(ctx)
}

func (s *Service) publish(topic string, data TimerEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: topic, Time: time.Now(), Data: data})
}
