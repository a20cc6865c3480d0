// Package timers is tickbot's persistent one-shot event scheduler.
//
// # Overview
//
// Any feature module can schedule an arbitrary future event (a reminder
// firing, a temporary moderation action expiring, a giveaway closing) with
// Schedule(). The timer is persisted immediately, so it survives process
// restarts, and is dispatched to the handlers registered for its event name
// via On() when its deadline arrives.
//
// # Dispatch model
//
// A single dispatch loop per process awaits at most one timer at a time: the
// one with the smallest (expires_at, id) in the store. Scheduling or
// cancelling a timer nudges the loop through a wake signal so an earlier
// deadline can preempt an in-progress sleep. When a timer's time arrives the
// loop deletes the row first and routes the event second; whichever caller
// deletes the row (the loop or a racing Cancel) owns the timer, so a timer is
// never dispatched twice within one process lifetime.
//
// On startup there is no separate recovery pass: a deadline that elapsed
// while the process was down simply computes a delay <= 0 on the first loop
// iteration and fires immediately, oldest id first.
//
// # Delivery guarantees
//
// Delivery is at-least-once under crash in the aggregate but the chosen
// ordering (delete before dispatch) means an event whose side effect was in
// flight during a crash is lost rather than duplicated. Handlers needing
// stronger guarantees must keep their own idempotency state.
package timers
