// Package errors holds the sentinel errors the state store's atomic
// operations return, so callers (internal/round) can classify a failure
// into one of spec.md §7's error kinds with errors.Is instead of parsing
// strings.
package errors

import "errors"

// ErrPhaseMismatch is returned when an atomic operation is attempted
// outside the phase it is scoped to (spec.md §4.4: "Pre-condition:
// current phase is X; atomic check").
var ErrPhaseMismatch = errors.New("store: operation not valid in current phase")

// ErrDuplicate is returned when a participant has already registered in
// the current round under the role being claimed.
var ErrDuplicate = errors.New("store: participant already registered this round")

// ErrShapeMismatch is returned when an update participant's local seed
// dictionary does not match SumDict's frozen key set exactly.
var ErrShapeMismatch = errors.New("store: local seed dict shape does not match sum dict")

// ErrNotFound is returned when submit_mask targets a pk_s_sum absent
// from SumDict.
var ErrNotFound = errors.New("store: participant not found in current round")

// ErrStoreConflict is returned when a compare-and-set lost a race; the
// caller should retry its read-check-mutate loop a bounded number of
// times (spec.md §7).
var ErrStoreConflict = errors.New("store: compare-and-set conflict")
