package chain

import "context"

// Store is the only legal way the coordinator's round tables are
// mutated (spec.md §4.4). Every method is linearizable and all-or-
// nothing: partial writes are impossible. Implementations: boltdb
// (durable) and memdb (in-process, tests and single-process demos).
type Store interface {
	// RegisterSum inserts (pk_s, pk_e) into SumDict, in Sum phase only.
	// Returns chainerrors.ErrPhaseMismatch outside Sum, ErrDuplicate if
	// pk_s is already present (spec.md §4.4 op 1).
	RegisterSum(ctx context.Context, pk, pkEphemeral []byte) error

	// RegisterUpdate records an update participant and its seed-share
	// distribution atomically, in Update phase only; the masked model is
	// folded in separately through AccumulateMasked. shares'
	// outer key set must equal SumDict's frozen key set exactly; pk must
	// not already be in UpdateParticipants (spec.md §4.4 op 2).
	RegisterUpdate(ctx context.Context, pk []byte, shares []SeedShare) error

	// AccumulateMasked folds (maskedModel, scalar) into AggMasked and
	// TotalScalar, in Update phase only (spec.md §4.4 op 3).
	AccumulateMasked(ctx context.Context, maskedModel []byte, scalar float64) error

	// SubmitMask removes pkSum from SumDict and increments
	// MaskDict[mask], in Sum2 phase only. Returns ErrNotFound if pkSum is
	// absent (spec.md §4.4 op 4).
	SubmitMask(ctx context.Context, pkSum []byte, mask []byte) error

	// AdvancePhase atomically sets the phase to next iff the current
	// phase equals expected, and records the new phase's deadline
	// (spec.md §4.4 op 5). Returns ErrStoreConflict on a lost race.
	AdvancePhase(ctx context.Context, expected, next Phase, deadline int64) error

	// StartNewRound increments the round, resets every round table, sets
	// phase to Sum and records the new round's seed and deadline. Valid
	// from Idle and also from Failed; any other phase returns
	// ErrPhaseMismatch (spec.md §4.4 op 6).
	StartNewRound(ctx context.Context, seed []byte, deadline int64) (round uint64, err error)

	// Snapshot returns a consistent read of everything needed to restore
	// after a restart (spec.md §4.4 op 7).
	Snapshot(ctx context.Context) (*RoundTables, error)

	// PutGlobalModel commits G_r for round r. Retained independently of
	// round table resets.
	PutGlobalModel(ctx context.Context, round uint64, model []byte) error

	// GlobalModel returns the committed model for round, or ErrNotFound.
	GlobalModel(ctx context.Context, round uint64) ([]byte, error)

	// Close releases any resources held by the store.
	Close() error
}
