package timers

import "errors"

// ErrCorruptPayload marks a stored payload that no longer decodes as a JSON
// object. The dispatch loop discards such timers instead of retrying them.
var ErrCorruptPayload = errors.New("corrupt timer payload")

// ErrEmptyEvent is returned by Schedule when no event name is given.
var ErrEmptyEvent = errors.New("timer event name is empty")
