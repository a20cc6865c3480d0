package timers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tickbot/internal/eventbus"
	"tickbot/internal/storage"
	"tickbot/pkg/logx"
)

// run is the dispatch loop. Every iteration re-reads the earliest pending
// timer, so cancellations and newly scheduled earlier deadlines observed via
// the wake signal are always honored; the loop never acts on a stale record.
func (s *Service) run(ctx context.Context) error {
	var failures int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := s.store.EarliestTimer(ctx)
		if err != nil {
			failures++
			delay := backoffDelay(s.cfg, failures)
			s.log.Warn("timer store query failed, backing off",
				logx.Err(err),
				logx.Int("failures", failures),
				logx.Duration("backoff", delay))
			if _, werr := s.wake.Wait(ctx, delay); werr != nil {
				return werr
			}
			continue
		}

		if rec == nil {
			// Idle. Sleep until Schedule notifies.
			failures = 0
			if _, werr := s.wake.Wait(ctx, -1); werr != nil {
				return werr
			}
			continue
		}

		if delay := time.Until(rec.ExpiresAt); delay > 0 {
			// Waiting. Cap the sleep so a deadline months out still gets
			// re-read periodically; a wake cuts it short either way.
			failures = 0
			if delay > s.cfg.MaxWait {
				delay = s.cfg.MaxWait
			}
			if _, werr := s.wake.Wait(ctx, delay); werr != nil {
				return werr
			}
			continue
		}

		// Due now, or overdue from before a restart.
		if err := s.fire(ctx, rec); err != nil {
			failures++
			delay := backoffDelay(s.cfg, failures)
			s.log.Warn("timer fire failed, backing off",
				logx.Int64("timer_id", rec.ID),
				logx.Err(err),
				logx.Duration("backoff", delay))
			if _, werr := s.wake.Wait(ctx, delay); werr != nil {
				return werr
			}
			continue
		}
		failures = 0
	}
}

// fire removes one due timer from the store and routes it. The delete is the
// arbiter: only the caller whose delete actually removed the row dispatches,
// so a concurrent Cancel that wins the race suppresses delivery entirely.
// The returned error covers store failures only; handler failures are logged
// and audited but never bubble up, since the row is already gone and a retry
// would change nothing.
func (s *Service) fire(ctx context.Context, rec *storage.TimerRecord) error {
	removed, err := s.store.DeleteTimer(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("delete due timer: %w", err)
	}
	if !removed {
		s.log.Debug("timer removed before firing",
			logx.Int64("timer_id", rec.ID),
			logx.String("event", rec.Event))
		return nil
	}

	dispatchID := uuid.NewString()
	start := time.Now()
	t := Timer{
		ID:        rec.ID,
		Event:     rec.Event,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		Timezone:  rec.Timezone,
	}

	p, derr := decodePayload(rec.Payload)
	if derr != nil {
		// The row is gone already, so a corrupt payload means the timer is
		// discarded, loudly. Retrying could never repair the data.
		s.log.Error("discarding timer with corrupt payload",
			logx.Int64("timer_id", rec.ID),
			logx.String("event", rec.Event),
			logx.String("dispatch_id", dispatchID),
			logx.Err(derr))
		s.publish(eventbus.TopicTimerDropped, TimerEvent{
			ID: rec.ID, Event: rec.Event, ExpiresAt: rec.ExpiresAt,
			DispatchID: dispatchID, Error: derr.Error(),
		})
		s.audit(ctx, rec, dispatchID, derr, time.Since(start))
		return nil
	}
	t.Payload = p

	s.log.Debug("timer fired",
		logx.Int64("timer_id", t.ID),
		logx.String("event", t.Event),
		logx.String("dispatch_id", dispatchID),
		logx.Duration("overdue", time.Since(t.ExpiresAt)))

	handled, rerr := s.router.route(ctx, dispatchID, t)
	if handled {
		s.publish(eventbus.TopicTimerFired, TimerEvent{
			ID: t.ID, Event: t.Event, ExpiresAt: t.ExpiresAt, DispatchID: dispatchID,
		})
	}
	s.audit(ctx, rec, dispatchID, rerr, time.Since(start))
	return nil
}

// audit appends to the fired-timer log, best effort. Losing an audit row is
// preferable to stalling dispatch.
func (s *Service) audit(ctx context.Context, rec *storage.TimerRecord, dispatchID string, outcome error, took time.Duration) {
	entry := storage.FiredEntry{
		At:         time.Now().UTC(),
		TimerID:    rec.ID,
		Event:      rec.Event,
		DispatchID: dispatchID,
		OK:         outcome == nil,
		TookMS:     took.Milliseconds(),
	}
	if outcome != nil {
		entry.Error = outcome.Error()
	}
	if err := s.store.AppendFired(ctx, entry); err != nil {
		s.log.Warn("fired-timer audit write failed",
			logx.Int64("timer_id", rec.ID), logx.Err(err))
	}
}

// backoffDelay grows exponentially from RetryBase toward RetryMaxDelay with
// a little jitter so restarting replicas don't hammer a recovering store in
// lockstep.
func backoffDelay(cfg Config, failures int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < failures && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
