// Package phase implements the round phase machine (C6, spec.md §4.6):
// a single goroutine that owns every phase transition, sleeping on a
// clockwork.Clock-driven deadline timer and waking early when a request
// handler signals a threshold may have been crossed. Grounded on the
// teacher's beacon.Handler.run ticker/select-loop shape
// (internal/chain/beacon/node.go), generalized from "one periodic beacon
// tick" to "the three counted phases, each with its own count and
// deadline bounds."
package phase

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
)

// Bounds is one phase's (count_min, count_max, deadline_min, deadline_max)
// from configuration (spec.md §4.6).
type Bounds struct {
	CountMin int
	CountMax int

	DeadlineMin time.Duration
	DeadlineMax time.Duration
}

// Config carries the Bounds for every counted phase. Unmask and Failed
// have no count/deadline of their own: they resolve as soon as the
// machine observes them.
type Config struct {
	Sum    Bounds
	Update Bounds
	Sum2   Bounds
}

// MetricsCollector is the narrow observability surface the phase machine
// calls into on every transition and round completion. Metrics emission
// itself is external functionality per spec.md §1, but the ambient
// instrumentation hook is carried regardless (internal/net's
// PrometheusCollector satisfies this interface structurally, with no
// import back into phase needed).
type MetricsCollector interface {
	// PhaseTransition records a phase-machine transition.
	PhaseTransition(from, to chain.Phase)
	// RoundCompleted records a round reaching Idle, tagged by whether it
	// committed a new global model or failed to reach quorum.
	RoundCompleted(committed bool)
}

type noopMetrics struct{}

func (noopMetrics) PhaseTransition(_, _ chain.Phase) {}
func (noopMetrics) RoundCompleted(_ bool)            {}

// Unmasker computes and commits the next global model from a round's
// final tables, or reports that the round failed to reach quorum. It is
// implemented by internal/round so that internal/phase never needs to
// know about mask.Config or aggregation details.
type Unmasker interface {
	// Counts returns how many participants have been admitted toward the
	// current phase's threshold, given the latest snapshot.
	Counts(tables *chain.RoundTables) (sum, update, sum2 int)

	// Unmask computes G_r from tables and commits it via the store,
	// returning an error if the round cannot be unmasked.
	Unmask(ctx context.Context, tables *chain.RoundTables) error

	// Seed returns the seed s_r for a newly started round.
	Seed(ctx context.Context, round uint64) ([]byte, error)
}

// Machine drives one store through repeated rounds of
// Idle->Sum->Update->Sum2->Unmask->Idle (or ...->Failed->Idle).
type Machine struct {
	store   chain.Store
	clock   clockwork.Clock
	cfg     Config
	un      Unmasker
	l       log.Logger
	metrics MetricsCollector

	wake chan struct{}

	// seenPhase/enteredAt track when the machine last observed a phase
	// change, since the machine is the sole task ever driving
	// transitions (spec.md §5's "one phase-machine task owns phase
	// transitions") and so is the only reliable clock for deadline_min.
	seenPhase chain.Phase
	enteredAt time.Time
}

// Option configures a Machine beyond its required store/clock/cfg/Unmasker.
type Option func(*Machine)

// WithMetrics registers a MetricsCollector the machine reports every
// transition and round completion to.
func WithMetrics(c MetricsCollector) Option {
	return func(m *Machine) { m.metrics = c }
}

// New returns a Machine ready to Run.
func New(store chain.Store, clock clockwork.Clock, cfg Config, un Unmasker, l log.Logger, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		clock:     clock,
		cfg:       cfg,
		un:        un,
		l:         l,
		metrics:   noopMetrics{},
		wake:      make(chan struct{}, 1),
		seenPhase: chain.Idle,
		enteredAt: clock.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wake lets a request handler nudge the machine to re-check thresholds
// immediately after an admission, instead of waiting for the next
// deadline tick (spec.md §5's "wake-up from the store when a threshold
// is crossed").
func (m *Machine) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run drives the machine until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		snap, err := m.store.Snapshot(ctx)
		if err != nil {
			m.l.Errorw("phase machine snapshot failed", "err", err)
			return err
		}

		if snap.Phase != m.seenPhase {
			m.seenPhase = snap.Phase
			m.enteredAt = m.clock.Now()
		}

		var err2 error
		switch snap.Phase {
		case chain.Idle:
			err2 = m.startRound(ctx, snap)
		case chain.Sum:
			err2 = m.driveCounted(ctx, chain.Sum, chain.Update, m.cfg.Sum, func(t *chain.RoundTables) int {
				sum, _, _ := m.un.Counts(t)
				return sum
			})
		case chain.Update:
			err2 = m.driveCounted(ctx, chain.Update, chain.Sum2, m.cfg.Update, func(t *chain.RoundTables) int {
				_, update, _ := m.un.Counts(t)
				return update
			})
		case chain.Sum2:
			err2 = m.driveCounted(ctx, chain.Sum2, chain.Unmask, m.cfg.Sum2, func(t *chain.RoundTables) int {
				_, _, sum2 := m.un.Counts(t)
				return sum2
			})
		case chain.Unmask:
			err2 = m.finishUnmask(ctx, snap)
		case chain.Failed:
			err2 = m.finishFailed(ctx, snap)
		}

		if err2 != nil {
			m.l.Warnw("phase machine step did not apply", "phase", snap.Phase.String(), "err", err2)
		}
	}
}

func (m *Machine) startRound(ctx context.Context, snap *chain.RoundTables) error {
	round := snap.Round + 1
	seed, err := m.un.Seed(ctx, round)
	if err != nil {
		return err
	}
	deadline := m.clock.Now().Add(m.cfg.Sum.DeadlineMax).Unix()
	r, err := m.store.StartNewRound(ctx, seed, deadline)
	if err != nil {
		return err
	}
	m.l.Infow("started round", "round", r)
	return nil
}

// driveCounted waits for either the phase's minimum deadline-then-count
// to be satisfied or its maximum deadline to expire, then attempts
// advance_phase(expected, next) exactly once (spec.md §4.6). Losers of
// the CAS simply loop back around via Run and re-check the new phase.
func (m *Machine) driveCounted(ctx context.Context, expected, next chain.Phase, b Bounds, count func(*chain.RoundTables) int) error {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	minAt := m.enteredAt.Add(b.DeadlineMin)
	minElapsed := !m.clock.Now().Before(minAt)
	deadlineAt := time.Unix(snap.PhaseDeadline, 0)

	n := count(snap)
	// count_max is a hard ceiling (spec.md §4.6): once reached, advance
	// immediately without waiting for deadline_min, the same way a
	// request handler's Wake nudges the machine to re-check early.
	if b.CountMax > 0 && n >= b.CountMax {
		return m.advance(ctx, expected, next, b.DeadlineMax)
	}
	if minElapsed && n >= b.CountMin {
		return m.advance(ctx, expected, next, b.DeadlineMax)
	}

	// Wait for whichever comes first: deadline_min (if the count target
	// is already met, so we can re-check right away) or deadline_max.
	wakeAt := deadlineAt
	if n >= b.CountMin && minAt.Before(wakeAt) {
		wakeAt = minAt
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.wake:
		return nil // re-check from the top of Run
	case <-m.clock.After(wakeAt.Sub(m.clock.Now())):
		snap, err := m.store.Snapshot(ctx)
		if err != nil {
			return err
		}
		if count(snap) >= b.CountMin {
			return m.advance(ctx, expected, next, b.DeadlineMax)
		}
		return m.advance(ctx, expected, chain.Failed, 0)
	}
}

func (m *Machine) advance(ctx context.Context, expected, next chain.Phase, deadlineDelta time.Duration) error {
	deadline := int64(0)
	if deadlineDelta > 0 {
		deadline = m.clock.Now().Add(deadlineDelta).Unix()
	}
	if err := m.store.AdvancePhase(ctx, expected, next, deadline); err != nil {
		return err
	}
	m.metrics.PhaseTransition(expected, next)
	m.l.Infow("advanced phase", "from", expected.String(), "to", next.String())
	return nil
}

func (m *Machine) finishUnmask(ctx context.Context, snap *chain.RoundTables) error {
	if err := m.un.Unmask(ctx, snap); err != nil {
		m.l.Errorw("unmask failed, failing round", "round", snap.Round, "err", err)
		return m.advance(ctx, chain.Unmask, chain.Failed, 0)
	}
	m.metrics.RoundCompleted(true)
	return m.advance(ctx, chain.Unmask, chain.Idle, 0)
}

func (m *Machine) finishFailed(ctx context.Context, snap *chain.RoundTables) error {
	m.l.Warnw("round failed", "round", snap.Round)
	m.metrics.RoundCompleted(false)
	return m.advance(ctx, chain.Failed, chain.Idle, 0)
}
