// Package memdb implements chain.Store entirely in memory, guarded by a
// single mutex. It is used by tests and by single-process deployments
// that don't need crash recovery, mirroring the teacher's
// internal/chain/memdb backend that sits alongside its durable boltdb
// store behind the same interface.
package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/xaynetwork/xaynet/internal/chain"
	chainerrors "github.com/xaynetwork/xaynet/internal/chain/errors"
)

type roundState struct {
	round uint64
	phase chain.Phase
	seed  []byte

	sumDict  []chain.SumEntry
	seedDict []chain.SeedShare
	updaters [][]byte

	aggMasked   []byte
	totalScalar float64

	maskDict []chain.MaskCount
	sum2Base int

	phaseDeadline int64
}

// Store is the in-memory chain.Store implementation.
type Store struct {
	mu sync.Mutex

	cur roundState

	globalModels map[uint64][]byte
}

// New returns an empty Store, parked in Idle at round 0.
func New() *Store {
	return &Store{
		cur:          roundState{phase: chain.Idle},
		globalModels: make(map[uint64][]byte),
	}
}

func indexOf(keys [][]byte, pk []byte) int {
	for i, k := range keys {
		if bytes.Equal(k, pk) {
			return i
		}
	}
	return -1
}

func (s *Store) RegisterSum(_ context.Context, pk, pkEphemeral []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != chain.Sum {
		return chainerrors.ErrPhaseMismatch
	}
	for _, e := range s.cur.sumDict {
		if bytes.Equal(e.PublicKey, pk) {
			return chainerrors.ErrDuplicate
		}
	}
	s.cur.sumDict = append(s.cur.sumDict, chain.SumEntry{PublicKey: pk, Ephemeral: pkEphemeral})
	return nil
}

func (s *Store) RegisterUpdate(_ context.Context, pk []byte, shares []chain.SeedShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != chain.Update {
		return chainerrors.ErrPhaseMismatch
	}
	for _, u := range s.cur.updaters {
		if bytes.Equal(u, pk) {
			return chainerrors.ErrDuplicate
		}
	}

	sumKeys := make([][]byte, len(s.cur.sumDict))
	for i, e := range s.cur.sumDict {
		sumKeys[i] = e.PublicKey
	}
	if len(shares) != len(sumKeys) {
		return chainerrors.ErrShapeMismatch
	}
	seen := make(map[int]bool, len(shares))
	for _, sh := range shares {
		idx := indexOf(sumKeys, sh.SumPublicKey)
		if idx < 0 || seen[idx] {
			return chainerrors.ErrShapeMismatch
		}
		seen[idx] = true
	}

	s.cur.updaters = append(s.cur.updaters, pk)
	for _, sh := range shares {
		sh.UpdatePublicKey = pk
		s.cur.seedDict = append(s.cur.seedDict, sh)
	}
	return nil
}

func (s *Store) AccumulateMasked(_ context.Context, maskedModel []byte, scalar float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != chain.Update {
		return chainerrors.ErrPhaseMismatch
	}
	// The raw accumulation is vector addition performed by the
	// aggregator (internal/aggregate); the store only needs to persist
	// whatever byte encoding it is handed so it survives a restart.
	s.cur.aggMasked = maskedModel
	s.cur.totalScalar += scalar
	return nil
}

func (s *Store) SubmitMask(_ context.Context, pkSum, mask []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != chain.Sum2 {
		return chainerrors.ErrPhaseMismatch
	}
	idx := -1
	for i, e := range s.cur.sumDict {
		if bytes.Equal(e.PublicKey, pkSum) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return chainerrors.ErrNotFound
	}
	s.cur.sumDict = append(s.cur.sumDict[:idx], s.cur.sumDict[idx+1:]...)

	for i, mc := range s.cur.maskDict {
		if bytes.Equal(mc.Mask, mask) {
			s.cur.maskDict[i].Count++
			return nil
		}
	}
	s.cur.maskDict = append(s.cur.maskDict, chain.MaskCount{Mask: mask, Count: 1})
	return nil
}

func (s *Store) AdvancePhase(_ context.Context, expected, next chain.Phase, deadline int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != expected {
		return chainerrors.ErrStoreConflict
	}
	if next == chain.Sum2 {
		s.cur.sum2Base = len(s.cur.sumDict)
	}
	s.cur.phase = next
	s.cur.phaseDeadline = deadline
	return nil
}

func (s *Store) StartNewRound(_ context.Context, seed []byte, deadline int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.phase != chain.Idle && s.cur.phase != chain.Failed {
		return 0, chainerrors.ErrPhaseMismatch
	}
	s.cur = roundState{
		round:         s.cur.round + 1,
		phase:         chain.Sum,
		seed:          seed,
		phaseDeadline: deadline,
	}
	return s.cur.round, nil
}

func (s *Store) Snapshot(_ context.Context) (*chain.RoundTables, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sumDict := append([]chain.SumEntry(nil), s.cur.sumDict...)
	seedDict := append([]chain.SeedShare(nil), s.cur.seedDict...)
	updaters := append([][]byte(nil), s.cur.updaters...)
	maskDict := append([]chain.MaskCount(nil), s.cur.maskDict...)

	return &chain.RoundTables{
		Round:              s.cur.round,
		Phase:              s.cur.phase,
		Seed:               s.cur.seed,
		SumDict:            sumDict,
		SeedDict:           seedDict,
		UpdateParticipants: updaters,
		AggMasked:          s.cur.aggMasked,
		TotalScalar:        s.cur.totalScalar,
		MaskDict:           maskDict,
		Sum2Base:           s.cur.sum2Base,
		PhaseDeadline:      s.cur.phaseDeadline,
	}, nil
}

func (s *Store) PutGlobalModel(_ context.Context, round uint64, model []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalModels[round] = model
	return nil
}

func (s *Store) GlobalModel(_ context.Context, round uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.globalModels[round]
	if !ok {
		return nil, chainerrors.ErrNotFound
	}
	return m, nil
}

func (s *Store) Close() error { return nil }

var _ chain.Store = (*Store)(nil)
