// Package net specifies the transport-facing surface spec.md §1 places
// out of scope: the data an info endpoint serves, the HTTP-status-class
// mapping for the error kinds of spec.md §7, and the metrics hook the
// core calls into. No HTTP framework is imported here — an adapter
// package (not part of this core) is expected to implement a server
// around these types, mirroring how the teacher separates its net
// package's wire-level concerns from protocol logic.
package net

import (
	"errors"
	"time"

	"github.com/xaynetwork/xaynet/internal/chain"
	"github.com/xaynetwork/xaynet/internal/mask"
	"github.com/xaynetwork/xaynet/internal/selection"
	"github.com/xaynetwork/xaynet/internal/round"

	chainerrors "github.com/xaynetwork/xaynet/internal/chain/errors"
)

// RoundInfo is what the read-only, pollable info endpoint returns
// (spec.md §6): round/phase/seed plus the configuration a participant
// needs to decide its own role and produce a message.
type RoundInfo struct {
	Round       uint64
	Phase       chain.Phase
	Seed        []byte
	ModelLength int
	Mask        mask.Config
	Thresholds  selection.Thresholds
	DeadlineAt  time.Time
}

// NewRoundInfo builds a RoundInfo from a store snapshot.
func NewRoundInfo(t *chain.RoundTables, modelLength int, m mask.Config, th selection.Thresholds) RoundInfo {
	return RoundInfo{
		Round:       t.Round,
		Phase:       t.Phase,
		Seed:        t.Seed,
		ModelLength: modelLength,
		Mask:        m,
		Thresholds:  th,
		DeadlineAt:  time.Unix(t.PhaseDeadline, 0),
	}
}

// StatusClass is one of the HTTP-status-class buckets spec.md §6/§7
// define for message-endpoint responses.
type StatusClass int

const (
	// StatusAccepted is the 202 a message endpoint returns on acceptance.
	StatusAccepted StatusClass = iota
	// StatusMalformed is the 400-class: framing/codec/signature failure.
	StatusMalformed
	// StatusRoleRejected is the 403-class: selection predicate failed.
	StatusRoleRejected
	// StatusRulesRejected is the 409-class: wrong phase, duplicate, shape
	// mismatch.
	StatusRulesRejected
	// StatusUnavailable is the 503-class: initializing, recovering, or a
	// store CAS conflict exhausted its retries.
	StatusUnavailable
)

// StatusError wraps an error returned by internal/round or
// internal/chain with the HTTP-status class a transport adapter should
// answer with, so the adapter never has to pattern-match error strings.
type StatusError struct {
	Err   error
	Class StatusClass
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// Classify maps an error returned by internal/round's Handle* methods to
// the status class a transport adapter answers with (spec.md §7).
func Classify(err error) *StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, round.ErrMalformed):
		return &StatusError{Err: err, Class: StatusMalformed}
	case errors.Is(err, round.ErrRoleRejected):
		return &StatusError{Err: err, Class: StatusRoleRejected}
	case errors.Is(err, chainerrors.ErrPhaseMismatch),
		errors.Is(err, chainerrors.ErrDuplicate),
		errors.Is(err, chainerrors.ErrShapeMismatch),
		errors.Is(err, chainerrors.ErrNotFound):
		return &StatusError{Err: err, Class: StatusRulesRejected}
	case errors.Is(err, chainerrors.ErrStoreConflict):
		return &StatusError{Err: err, Class: StatusUnavailable}
	default:
		return &StatusError{Err: err, Class: StatusUnavailable}
	}
}
