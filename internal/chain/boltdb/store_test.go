package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
	chainerrors "github.com/xaynetwork/xaynet/internal/chain/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), log.DefaultLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartNewRoundMovesIdleToSum(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	r, err := s.StartNewRound(ctx, []byte("seed"), 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, chain.Sum, snap.Phase)
	require.Equal(t, []byte("seed"), snap.Seed)
	require.Equal(t, int64(100), snap.PhaseDeadline)
}

func TestRegisterSumRejectsDuplicateAndWrongPhase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.RegisterSum(ctx, []byte("pk"), []byte("pke"))
	require.ErrorIs(t, err, chainerrors.ErrPhaseMismatch)

	_, err = s.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	require.NoError(t, s.RegisterSum(ctx, []byte("pk"), []byte("pke")))
	err = s.RegisterSum(ctx, []byte("pk"), []byte("pke2"))
	require.ErrorIs(t, err, chainerrors.ErrDuplicate)
}

func TestRegisterUpdateEnforcesSumDictShape(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)
	require.NoError(t, s.RegisterSum(ctx, []byte("sum1"), []byte("eph1")))
	require.NoError(t, s.AdvancePhase(ctx, chain.Sum, chain.Update, 0))

	err = s.RegisterUpdate(ctx, []byte("u1"), []chain.SeedShare{
		{SumPublicKey: []byte("stranger"), Ciphertext: []byte("ct")},
	})
	require.ErrorIs(t, err, chainerrors.ErrShapeMismatch)

	require.NoError(t, s.RegisterUpdate(ctx, []byte("u1"), []chain.SeedShare{
		{SumPublicKey: []byte("sum1"), Ciphertext: []byte("ct")},
	}))

	err = s.RegisterUpdate(ctx, []byte("u1"), []chain.SeedShare{
		{SumPublicKey: []byte("sum1"), Ciphertext: []byte("ct2")},
	})
	require.ErrorIs(t, err, chainerrors.ErrDuplicate)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.SeedDict, 1)
	require.Equal(t, []byte("u1"), snap.SeedDict[0].UpdatePublicKey)
}

func TestSubmitMaskRemovesFromSumDictAndCounts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)
	require.NoError(t, s.RegisterSum(ctx, []byte("sum1"), []byte("eph1")))
	require.NoError(t, s.RegisterSum(ctx, []byte("sum2"), []byte("eph2")))
	require.NoError(t, s.AdvancePhase(ctx, chain.Sum, chain.Update, 0))
	require.NoError(t, s.AdvancePhase(ctx, chain.Update, chain.Sum2, 0))

	require.NoError(t, s.SubmitMask(ctx, []byte("sum1"), []byte("mu")))
	require.NoError(t, s.SubmitMask(ctx, []byte("sum2"), []byte("mu")))

	err = s.SubmitMask(ctx, []byte("sum1"), []byte("mu"))
	require.ErrorIs(t, err, chainerrors.ErrNotFound)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.SumDict)
	require.Len(t, snap.MaskDict, 1)
	require.Equal(t, 2, snap.MaskDict[0].Count)
	require.Equal(t, []byte("mu"), snap.MaskDict[0].Mask)
}

func TestAdvancePhaseIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	require.NoError(t, s.AdvancePhase(ctx, chain.Sum, chain.Update, 0))
	err = s.AdvancePhase(ctx, chain.Sum, chain.Update, 0)
	require.ErrorIs(t, err, chainerrors.ErrStoreConflict)
}

func TestAccumulateMaskedTracksTotalScalar(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	err = s.AccumulateMasked(ctx, []byte("masked"), 1.0)
	require.ErrorIs(t, err, chainerrors.ErrPhaseMismatch)

	require.NoError(t, s.AdvancePhase(ctx, chain.Sum, chain.Update, 0))
	require.NoError(t, s.AccumulateMasked(ctx, []byte("masked"), 1.0))
	require.NoError(t, s.AccumulateMasked(ctx, []byte("masked2"), 2.0))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("masked2"), snap.AggMasked)
	require.Equal(t, 3.0, snap.TotalScalar)
}

func TestStartNewRoundResetsTablesButKeepsGlobalModel(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.StartNewRound(ctx, []byte("seed1"), 0)
	require.NoError(t, err)
	require.NoError(t, s.RegisterSum(ctx, []byte("sum1"), []byte("eph1")))
	require.NoError(t, s.PutGlobalModel(ctx, 1, []byte("model-1")))

	r2, err := s.StartNewRound(ctx, []byte("seed2"), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), r2)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.SumDict)
	require.Equal(t, []byte("seed2"), snap.Seed)

	model, err := s.GlobalModel(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("model-1"), model)
}

func TestGlobalModelNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GlobalModel(ctx, 42)
	require.ErrorIs(t, err, chainerrors.ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := Open(dir, log.DefaultLogger(), nil)
	require.NoError(t, err)
	_, err = s1.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)
	require.NoError(t, s1.RegisterSum(ctx, []byte("sum1"), []byte("eph1")))
	require.NoError(t, s1.Close())

	s2, err := Open(dir, log.DefaultLogger(), nil)
	require.NoError(t, err)
	defer s2.Close()

	snap, err := s2.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, chain.Sum, snap.Phase)
	require.Len(t, snap.SumDict, 1)
	require.Equal(t, []byte("sum1"), snap.SumDict[0].PublicKey)
}
