// Package round implements the round coordinator (C8, spec.md §4.6): per
// phase admission handlers that validate an incoming message and, if
// accepted, mutate the store, plus the glue internal/phase needs to
// count participants and close out a round. Grounded on the teacher's
// Handler.ProcessPartialBeacon (internal/chain/beacon/node.go): verify,
// check the admission rule, mutate the store, log — split into three
// handlers, one per PET message kind, instead of one handler for drand's
// single message kind.
package round

import "errors"

// Category errors a transport adapter maps to the HTTP-status classes of
// spec.md §7. internal/chain/errors' sentinels are returned directly for
// the store-level rejections (phase mismatch, duplicate, shape mismatch,
// store conflict); these two are round's own, pre-store rejections.
var (
	// ErrMalformed marks a framing/codec/signature failure: the client is
	// at fault (spec.md §7, 400-class).
	ErrMalformed = errors.New("round: malformed message")

	// ErrRoleRejected marks a selection-predicate failure: the
	// participant was not eligible for the role it claimed, or already
	// holds a different role this round (spec.md §7, 403-class).
	ErrRoleRejected = errors.New("round: role rejected")
)
