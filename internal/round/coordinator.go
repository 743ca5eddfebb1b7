package round

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xaynetwork/xaynet/common/key"
	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/aggregate"
	"github.com/xaynetwork/xaynet/internal/chain"
	"github.com/xaynetwork/xaynet/internal/crypto"
	"github.com/xaynetwork/xaynet/internal/mask"
	"github.com/xaynetwork/xaynet/internal/message"
	"github.com/xaynetwork/xaynet/internal/selection"
)

// defaultSeedLen is the number of true-random bytes published as s_r at
// the start of every round (spec.md §3).
const defaultSeedLen = 32

// defaultFoldQueue bounds how many in-flight update submissions may be
// waiting on the fold pool before Submit starts applying backpressure to
// request handlers (spec.md §5).
const defaultFoldQueue = 64

// Waker lets the coordinator nudge the phase machine to re-check its
// thresholds immediately after an admission instead of waiting for the
// next deadline tick (spec.md §5's "wake-up from the store when a
// threshold is crossed"). internal/phase.Machine satisfies this.
type Waker interface {
	Wake()
}

type noopWaker struct{}

func (noopWaker) Wake() {}

// Coordinator implements C8 (spec.md §4.6): one admission handler per PET
// message kind, each verifying, checking the selection predicate, and
// mutating the store; and C7's entry points, exposed so internal/phase
// can drive transitions without knowing mask/aggregate details. Grounded
// on the teacher's Handler.ProcessPartialBeacon
// (drand-drand/internal/chain/beacon/node.go): verify, check the
// admission rule, mutate the store, log.
type Coordinator struct {
	store chain.Store
	cfg   mask.Config
	l     int

	thresholds    selection.Thresholds
	failOnDissent bool
	seedLen       int

	acc   *aggregate.Accumulator
	waker Waker
	log   log.Logger

	// foldPool is a single-worker aggregate.Pool that serializes the read
	// (Snapshot), fold (Accumulator.Fold) and write (AccumulateMasked)
	// sequence for every Update submission: AccumulateMasked persists
	// whatever encoding it is handed, so two concurrent updates computing
	// their new running total from the same stale snapshot would lose an
	// update unless that sequence runs as one unit of work. Exactly the
	// bounded-worker-pool role spec.md §5 assigns to the CPU-bound mod-q
	// additions, with its queue giving Update handlers backpressure
	// instead of blocking on an ad-hoc lock.
	foldPool *aggregate.Pool
}

// Option configures a Coordinator beyond its required store/mask/model
// length/thresholds.
type Option func(*Coordinator)

// WithWaker registers the phase machine (or a test double) to be woken
// after every accepted message.
func WithWaker(w Waker) Option {
	return func(c *Coordinator) { c.waker = w }
}

// WithFailOnDissent makes Unmask fail the round instead of picking the
// plurality mask when Sum2 closes with more than one distinct
// reconstructed mask (spec.md §9's Open Question; see DESIGN.md for why
// plurality is the default).
func WithFailOnDissent(v bool) Option {
	return func(c *Coordinator) { c.failOnDissent = v }
}

// WithSeedLen overrides how many bytes of true randomness are published
// as s_r per round (default 32).
func WithSeedLen(n int) Option {
	return func(c *Coordinator) { c.seedLen = n }
}

// WithFoldQueue overrides the fold pool's backpressure queue depth
// (default 64).
func WithFoldQueue(n int) Option {
	return func(c *Coordinator) { c.foldPool = aggregate.NewPool(1, n) }
}

// New returns a Coordinator dispatching admission against store for
// models of length l under mask configuration cfg.
func New(store chain.Store, cfg mask.Config, l int, thresholds selection.Thresholds, l_ log.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		cfg:        cfg,
		l:          l,
		thresholds: thresholds,
		seedLen:    defaultSeedLen,
		acc:        aggregate.New(cfg, l),
		waker:      noopWaker{},
		log:        l_,
		foldPool:   aggregate.NewPool(1, defaultFoldQueue),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetWaker wires the phase machine in after construction, breaking the
// constructor cycle between Coordinator (which needs a Waker) and
// phase.Machine (which needs a Coordinator as its Unmasker).
func (c *Coordinator) SetWaker(w Waker) {
	c.waker = w
}

func (c *Coordinator) wake() {
	if c.waker != nil {
		c.waker.Wake()
	}
}

func decodeIdentity(pk []byte) (*key.Identity, error) {
	id := &key.Identity{}
	if err := id.UnmarshalBinary(pk); err != nil {
		return nil, fmt.Errorf("%w: invalid public key: %v", ErrMalformed, err)
	}
	return id, nil
}

// HandleSum processes a SumMessage (spec.md §4.6's Sum row): signature
// check, role-eligibility check, then chain.Store.RegisterSum.
func (c *Coordinator) HandleSum(ctx context.Context, msg *message.SumMessage) error {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return err
	}

	id, err := decodeIdentity(msg.PublicKey)
	if err != nil {
		return err
	}

	tag := selection.Tag(selection.RoleSum, snap.Round, snap.Seed)
	if err := crypto.Verify(id, tag, msg.RoleSignature); err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	if !selection.Eligible(msg.RoleSignature, c.thresholds.Sum) {
		return fmt.Errorf("%w: not sum-eligible", ErrRoleRejected)
	}

	if err := c.store.RegisterSum(ctx, msg.PublicKey, msg.EphemeralKey); err != nil {
		return err
	}
	c.log.Infow("sum participant admitted", "round", snap.Round)
	c.wake()
	return nil
}

// HandleUpdate processes an UpdateMessage: signature check, role
// checks (update-eligible, and not already holding the sum role this
// round per spec.md §4.3's "Sum dictionary is checked first"), shape
// validation of the masked model, chain.Store.RegisterUpdate, then
// folds (maskedModel, scalar) into AggMasked/TotalScalar.
func (c *Coordinator) HandleUpdate(ctx context.Context, msg *message.UpdateMessage) error {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return err
	}

	id, err := decodeIdentity(msg.PublicKey)
	if err != nil {
		return err
	}

	tag := selection.Tag(selection.RoleUpdate, snap.Round, snap.Seed)
	if err := crypto.Verify(id, tag, msg.RoleSignature); err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	if !selection.Eligible(msg.RoleSignature, c.thresholds.Update) {
		return fmt.Errorf("%w: not update-eligible", ErrRoleRejected)
	}
	for _, e := range snap.SumDict {
		if bytes.Equal(e.PublicKey, msg.PublicKey) {
			return fmt.Errorf("%w: already registered as sum participant this round", ErrRoleRejected)
		}
	}

	masked, err := mask.FromBytes(c.cfg, msg.MaskedModel, c.l)
	if err != nil {
		return fmt.Errorf("%w: masked model: %v", ErrMalformed, err)
	}

	shares := make([]chain.SeedShare, 0, len(msg.LocalSeedDict))
	for sumPk, ciphertext := range msg.LocalSeedDict {
		shares = append(shares, chain.SeedShare{
			SumPublicKey: []byte(sumPk),
			Ciphertext:   ciphertext,
		})
	}

	if err := c.store.RegisterUpdate(ctx, msg.PublicKey, shares); err != nil {
		return err
	}

	if err := c.fold(ctx, masked, msg.Scalar); err != nil {
		return err
	}

	c.log.Infow("update participant admitted", "round", snap.Round)
	c.wake()
	return nil
}

// fold dispatches the read-modify-write AggMasked needs onto the single
// fold worker: RegisterUpdate has already enforced at-most-once
// participation, so by the time fold runs the only remaining hazard is
// two concurrent updates computing their new running total from the same
// stale snapshot. Routing every fold through one worker removes that
// race without a separate lock.
func (c *Coordinator) fold(ctx context.Context, masked *mask.Vector, scalar float64) error {
	return c.foldPool.Do(ctx, func() error {
		snap, err := c.store.Snapshot(ctx)
		if err != nil {
			return err
		}
		next, err := c.acc.Fold(snap.AggMasked, masked)
		if err != nil {
			return err
		}
		return c.store.AccumulateMasked(ctx, next, scalar)
	})
}

// HandleSum2 processes a Sum2Message: signature check (reusing the Sum
// role tag, since only a participant already admitted to SumDict may
// submit) then chain.Store.SubmitMask, which itself rejects a pk_s not
// present in the frozen SumDict (spec.md §4.6's Sum2 row).
func (c *Coordinator) HandleSum2(ctx context.Context, msg *message.Sum2Message) error {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return err
	}

	id, err := decodeIdentity(msg.PublicKey)
	if err != nil {
		return err
	}

	tag := selection.Tag(selection.RoleSum, snap.Round, snap.Seed)
	if err := crypto.Verify(id, tag, msg.RoleSignature); err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}

	if err := c.store.SubmitMask(ctx, msg.PublicKey, msg.ReconstructedMask); err != nil {
		return err
	}
	c.log.Infow("sum2 mask submitted", "round", snap.Round)
	c.wake()
	return nil
}

// Counts implements internal/phase.Unmasker.
func (c *Coordinator) Counts(t *chain.RoundTables) (sum, update, sum2 int) {
	return len(t.SumDict), len(t.UpdateParticipants), t.Sum2Base - len(t.SumDict)
}

// Seed implements internal/phase.Unmasker: publishes s_r as true
// randomness, independent of round/ctx (spec.md §3).
func (c *Coordinator) Seed(_ context.Context, _ uint64) ([]byte, error) {
	return crypto.RoundSeed(c.seedLen)
}

// Unmask implements internal/phase.Unmasker (spec.md §4.5): picks the
// plurality Sum2 mask (or fails the round on dissent if configured),
// inverts the bijection against AggMasked/TotalScalar, and commits G_r.
func (c *Coordinator) Unmask(ctx context.Context, t *chain.RoundTables) error {
	if err := t.ValidateSeedDictShape(); err != nil {
		return fmt.Errorf("round: seed dict shape: %w", err)
	}
	if len(t.MaskDict) == 0 {
		return fmt.Errorf("round: no masks reported in sum2")
	}
	if c.failOnDissent && len(t.MaskDict) > 1 {
		return fmt.Errorf("round: dissenting sum2 masks reported (%d distinct)", len(t.MaskDict))
	}

	plurality, err := aggregate.Plurality(t.MaskDict)
	if err != nil {
		return err
	}
	maskVec, err := mask.FromBytes(c.cfg, plurality.Mask, c.l)
	if err != nil {
		return fmt.Errorf("round: plurality mask: %w", err)
	}

	aggMaskedVec, err := mask.FromBytes(c.cfg, t.AggMasked, c.l)
	if err != nil {
		return fmt.Errorf("round: agg masked: %w", err)
	}

	model, err := aggregate.Unmask(c.cfg, aggMaskedVec, maskVec, t.TotalScalar)
	if err != nil {
		return err
	}

	encoded, err := encodeModel(model)
	if err != nil {
		return err
	}
	if err := c.store.PutGlobalModel(ctx, t.Round, encoded); err != nil {
		return err
	}
	c.log.Infow("round unmasked", "round", t.Round, "length", len(model))
	return nil
}
