package round

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xaynetwork/xaynet/common/key"
	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
	"github.com/xaynetwork/xaynet/internal/chain/memdb"
	"github.com/xaynetwork/xaynet/internal/crypto"
	"github.com/xaynetwork/xaynet/internal/mask"
	"github.com/xaynetwork/xaynet/internal/message"
	"github.com/xaynetwork/xaynet/internal/selection"
)

func testConfig() mask.Config {
	return mask.Config{Group: mask.Power2, Data: mask.F32, Bound: mask.B2, Model: mask.M3}
}

type participant struct {
	pair *key.Pair
	eph  *key.EphemeralPair
}

func newParticipant(t *testing.T) *participant {
	pair, err := key.NewKeyPair()
	require.NoError(t, err)
	eph, err := key.NewEphemeralPair()
	require.NoError(t, err)
	return &participant{pair: pair, eph: eph}
}

func (p *participant) pk(t *testing.T) []byte {
	b, err := p.pair.Public.MarshalBinary()
	require.NoError(t, err)
	return b
}

func (p *participant) pkEph(t *testing.T) []byte {
	b, err := p.eph.Public.MarshalBinary()
	require.NoError(t, err)
	return b
}

func (p *participant) sign(t *testing.T, role selection.Role, round uint64, seed []byte) []byte {
	sig, err := crypto.Sign(p.pair, selection.Tag(role, round, seed))
	require.NoError(t, err)
	return sig
}

// aboveScore returns a threshold strictly greater than score (and below
// 1), so a signature whose score is `score` always clears it.
func aboveScore(score float64) float64 {
	return score + (1-score)/2
}

// belowScore returns a threshold strictly less than score, so a
// signature whose score is `score` never clears it.
func belowScore(score float64) float64 {
	return score / 2
}

func encodeMaskedModel(t *testing.T, cfg mask.Config, model []float64, scalar float64) []byte {
	v, err := mask.Encode(cfg, model, scalar)
	require.NoError(t, err)
	return v.Bytes()
}

func zeroMask(t *testing.T, cfg mask.Config, l int) []byte {
	v, err := mask.NewVector(cfg, l)
	require.NoError(t, err)
	return v.Bytes()
}

func TestHandleSumAdmitsEligibleParticipant(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cfg := testConfig()
	l := 4

	round, err := store.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	a := newParticipant(t)
	sigA := a.sign(t, selection.RoleSum, round, []byte("seed"))
	th := selection.Thresholds{Sum: aboveScore(selection.Score(sigA)), Update: 0.999999}
	if th.Update <= th.Sum {
		th.Update = aboveScore(th.Sum)
	}

	c := New(store, cfg, l, th, log.DefaultLogger())
	err = c.HandleSum(ctx, &message.SumMessage{
		PublicKey:     a.pk(t),
		EphemeralKey:  a.pkEph(t),
		RoleSignature: sigA,
	})
	require.NoError(t, err)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.SumDict, 1)
	require.Equal(t, a.pk(t), snap.SumDict[0].PublicKey)
}

func TestHandleSumRejectsIneligibleParticipant(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cfg := testConfig()

	round, err := store.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	a := newParticipant(t)
	sigA := a.sign(t, selection.RoleSum, round, []byte("seed"))
	th := selection.Thresholds{Sum: belowScore(selection.Score(sigA)), Update: aboveScore(belowScore(selection.Score(sigA)))}
	if th.Sum <= 0 {
		t.Skip("degenerate score, cannot construct a sub-threshold")
	}

	c := New(store, cfg, 4, th, log.DefaultLogger())
	err = c.HandleSum(ctx, &message.SumMessage{
		PublicKey:     a.pk(t),
		EphemeralKey:  a.pkEph(t),
		RoleSignature: sigA,
	})
	require.ErrorIs(t, err, ErrRoleRejected)
}

func TestHandleSumRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cfg := testConfig()

	_, err := store.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	a := newParticipant(t)
	b := newParticipant(t)
	// Sign with b's key but present a's public key: signature verification
	// must fail before the eligibility check ever runs.
	sig := b.sign(t, selection.RoleSum, 1, []byte("seed"))

	c := New(store, cfg, 4, selection.Thresholds{Sum: 0.9, Update: 0.95}, log.DefaultLogger())
	err = c.HandleSum(ctx, &message.SumMessage{
		PublicKey:     a.pk(t),
		EphemeralKey:  a.pkEph(t),
		RoleSignature: sig,
	})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestHandleUpdateRejectsSumParticipant(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cfg := testConfig()
	l := 4

	round, err := store.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	a := newParticipant(t)
	sigASum := a.sign(t, selection.RoleSum, round, []byte("seed"))
	th := selection.Thresholds{Sum: aboveScore(selection.Score(sigASum)), Update: 0.9999}
	if th.Update <= th.Sum {
		th.Update = aboveScore(th.Sum)
	}
	c := New(store, cfg, l, th, log.DefaultLogger())

	require.NoError(t, c.HandleSum(ctx, &message.SumMessage{
		PublicKey:     a.pk(t),
		EphemeralKey:  a.pkEph(t),
		RoleSignature: sigASum,
	}))
	require.NoError(t, store.AdvancePhase(ctx, chain.Sum, chain.Update, 0))

	sigAUpdate := a.sign(t, selection.RoleUpdate, round, []byte("seed"))
	masked := encodeMaskedModel(t, cfg, []float64{0.1, 0.1, 0.1, 0.1}, 1.0)
	err = c.HandleUpdate(ctx, &message.UpdateMessage{
		PublicKey:     a.pk(t),
		RoleSignature: sigAUpdate,
		MaskedModel:   masked,
		Scalar:        1.0,
		LocalSeedDict: map[string][]byte{string(a.pk(t)): []byte("ct")},
	})
	require.ErrorIs(t, err, ErrRoleRejected)
}

func TestUnmaskCommitsGlobalModel(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	cfg := testConfig()
	l := 4

	round, err := store.StartNewRound(ctx, []byte("seed"), 0)
	require.NoError(t, err)

	c := New(store, cfg, l, selection.Thresholds{Sum: 0.1, Update: 0.5}, log.DefaultLogger())

	a := newParticipant(t)
	require.NoError(t, store.RegisterSum(ctx, a.pk(t), a.pkEph(t)))
	require.NoError(t, store.AdvancePhase(ctx, chain.Sum, chain.Update, 0))
	require.NoError(t, c.fold(ctx, mustVector(t, cfg, []float64{0.2, 0.2, 0.2, 0.2}, 1.0), 1.0))
	require.NoError(t, store.AdvancePhase(ctx, chain.Update, chain.Sum2, 0))
	require.NoError(t, store.SubmitMask(ctx, a.pk(t), zeroMask(t, cfg, l)))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Unmask(ctx, snap))

	model, err := store.GlobalModel(ctx, round)
	require.NoError(t, err)
	decoded, err := DecodeModel(model)
	require.NoError(t, err)
	for _, v := range decoded {
		require.InDelta(t, 0.2, v, 1e-3)
	}
}

func mustVector(t *testing.T, cfg mask.Config, model []float64, scalar float64) *mask.Vector {
	v, err := mask.Encode(cfg, model, scalar)
	require.NoError(t, err)
	return v
}
