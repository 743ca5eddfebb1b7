package phase

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
	"github.com/xaynetwork/xaynet/internal/chain/memdb"
)

type stubUnmasker struct {
	seed []byte
}

func (s *stubUnmasker) Counts(t *chain.RoundTables) (sum, update, sum2 int) {
	return len(t.SumDict), len(t.UpdateParticipants), 0
}

func (s *stubUnmasker) Unmask(ctx context.Context, t *chain.RoundTables) error {
	return nil
}

func (s *stubUnmasker) Seed(ctx context.Context, round uint64) ([]byte, error) {
	return s.seed, nil
}

func testBounds() Config {
	return Config{
		Sum:    Bounds{CountMin: 1, CountMax: 10, DeadlineMin: 0, DeadlineMax: time.Minute},
		Update: Bounds{CountMin: 1, CountMax: 10, DeadlineMin: 0, DeadlineMax: time.Minute},
		Sum2:   Bounds{CountMin: 1, CountMax: 10, DeadlineMin: 0, DeadlineMax: time.Minute},
	}
}

func TestMachineStartsFirstRound(t *testing.T) {
	store := memdb.New()
	clock := clockwork.NewFakeClock()
	un := &stubUnmasker{seed: []byte("seed")}
	m := New(store, clock, testBounds(), un, log.DefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot(ctx)
		return err == nil && snap.Round == 1 && snap.Phase == chain.Sum
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestMachineFailsSumOnDeadlineWithoutQuorum(t *testing.T) {
	store := memdb.New()
	clock := clockwork.NewFakeClock()
	un := &stubUnmasker{seed: []byte("seed")}
	cfg := testBounds()
	cfg.Sum.CountMin = 5 // unreachable in this test
	m := New(store, clock, cfg, un, log.DefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot(ctx)
		return err == nil && snap.Phase == chain.Sum
	}, time.Second, time.Millisecond)

	clock.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot(ctx)
		return err == nil && snap.Round == 2
	}, time.Second, time.Millisecond)
}

// TestMachineAdvancesOnCountMaxBeforeDeadlineMin locks in count_max as a
// hard ceiling (spec.md §4.6): reaching it must advance the phase even
// though deadline_min has not elapsed yet, rather than sitting idle until
// deadline_max like a below-count_min phase would.
func TestMachineAdvancesOnCountMaxBeforeDeadlineMin(t *testing.T) {
	store := memdb.New()
	clock := clockwork.NewFakeClock()
	un := &stubUnmasker{seed: []byte("seed")}
	cfg := testBounds()
	cfg.Sum.CountMin = 1
	cfg.Sum.CountMax = 2
	cfg.Sum.DeadlineMin = time.Hour
	m := New(store, clock, cfg, un, log.DefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot(ctx)
		return err == nil && snap.Phase == chain.Sum
	}, time.Second, time.Millisecond)

	require.NoError(t, store.RegisterSum(ctx, []byte("sum1"), []byte("eph1")))
	require.NoError(t, store.RegisterSum(ctx, []byte("sum2"), []byte("eph2")))
	m.Wake()

	require.Eventually(t, func() bool {
		snap, err := store.Snapshot(ctx)
		return err == nil && snap.Phase == chain.Update
	}, time.Second, time.Millisecond)
}
