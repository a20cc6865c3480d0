package storage

// Package storage is the durable timer store.
//
// It persists pending timers, answers the "single earliest timer" query the
// dispatch loop is built around, and keeps a small audit trail of fired
// timers for operational forensics.
