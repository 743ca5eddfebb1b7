// Package boltdb implements chain.Store durably with go.etcd.io/bbolt,
// one bucket per round table, ported from the teacher's
// internal/chain/boltdb bucket-per-concern layout (trimmed.go) and
// generalized from "append a beacon" to "CAS a phase and mutate a table
// in one transaction" for every atomic verb of spec.md §4.4.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"path"

	bolt "go.etcd.io/bbolt"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
	chainerrors "github.com/xaynetwork/xaynet/internal/chain/errors"
)

// FileName is the bbolt database file created under the configured
// store folder.
const FileName = "coordinator.db"

// FilePerm is the permission bbolt opens the database file with.
const FilePerm = 0o640

var (
	metaBucket        = []byte("meta")
	sumDictBucket     = []byte("sum_dict")
	seedDictBucket    = []byte("seed_dict")
	updatersBucket    = []byte("update_participants")
	maskDictBucket    = []byte("mask_dict")
	globalModelBucket = []byte("global_model")
)

const (
	keyRound         = "round"
	keyPhase         = "phase"
	keySeed          = "seed"
	keyAggMasked     = "agg_masked"
	keyTotalScalar   = "total_scalar"
	keyPhaseDeadline = "phase_deadline"
	keySum2Base      = "sum2_base"
)

// Store is the bbolt-backed chain.Store implementation.
type Store struct {
	db  *bolt.DB
	log log.Logger
}

// Open opens (creating if necessary) the bbolt database under folder and
// ensures every round-table bucket exists.
func Open(folder string, l log.Logger, opts *bolt.Options) (*Store, error) {
	dbPath := path.Join(folder, FileName)
	db, err := bolt.Open(dbPath, FilePerm, opts)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{metaBucket, sumDictBucket, seedDictBucket, updatersBucket, maskDictBucket, globalModelBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db, log: l}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func getPhase(meta *bolt.Bucket) chain.Phase {
	v := meta.Get([]byte(keyPhase))
	if v == nil {
		return chain.Idle
	}
	return chain.Phase(v[0])
}

func putPhase(meta *bolt.Bucket, p chain.Phase) error {
	return meta.Put([]byte(keyPhase), []byte{byte(p)})
}

func getUint64(meta *bolt.Bucket, key string) uint64 {
	v := meta.Get([]byte(key))
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putUint64(meta *bolt.Bucket, key string, n uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return meta.Put([]byte(key), buf)
}

func getInt64(meta *bolt.Bucket, key string) int64 {
	return int64(getUint64(meta, key))
}

func putInt64(meta *bolt.Bucket, key string, n int64) error {
	return putUint64(meta, key, uint64(n))
}

func getFloat64(meta *bolt.Bucket, key string) float64 {
	return math.Float64frombits(getUint64(meta, key))
}

func putFloat64(meta *bolt.Bucket, key string, f float64) error {
	return putUint64(meta, key, math.Float64bits(f))
}

// RegisterSum implements chain.Store (spec.md §4.4 op 1).
func (s *Store) RegisterSum(_ context.Context, pk, pkEphemeral []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if getPhase(meta) != chain.Sum {
			return chainerrors.ErrPhaseMismatch
		}
		sumDict := tx.Bucket(sumDictBucket)
		if sumDict.Get(pk) != nil {
			return chainerrors.ErrDuplicate
		}
		return sumDict.Put(pk, pkEphemeral)
	})
}

// RegisterUpdate implements chain.Store (spec.md §4.4 op 2).
func (s *Store) RegisterUpdate(_ context.Context, pk []byte, shares []chain.SeedShare) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if getPhase(meta) != chain.Update {
			return chainerrors.ErrPhaseMismatch
		}

		updaters := tx.Bucket(updatersBucket)
		if updaters.Get(pk) != nil {
			return chainerrors.ErrDuplicate
		}

		sumDict := tx.Bucket(sumDictBucket)
		sumCount := sumDict.Stats().KeyN
		if len(shares) != sumCount {
			return chainerrors.ErrShapeMismatch
		}
		seen := make(map[string]bool, len(shares))
		for _, sh := range shares {
			if sumDict.Get(sh.SumPublicKey) == nil || seen[string(sh.SumPublicKey)] {
				return chainerrors.ErrShapeMismatch
			}
			seen[string(sh.SumPublicKey)] = true
		}

		if err := updaters.Put(pk, []byte{1}); err != nil {
			return err
		}
		seedDict := tx.Bucket(seedDictBucket)
		for _, sh := range shares {
			sh.UpdatePublicKey = pk
			raw, err := json.Marshal(sh)
			if err != nil {
				return err
			}
			seqKey := append(append([]byte{}, sh.SumPublicKey...), pk...)
			if err := seedDict.Put(seqKey, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccumulateMasked implements chain.Store (spec.md §4.4 op 3).
func (s *Store) AccumulateMasked(_ context.Context, maskedModel []byte, scalar float64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if getPhase(meta) != chain.Update {
			return chainerrors.ErrPhaseMismatch
		}
		if err := meta.Put([]byte(keyAggMasked), maskedModel); err != nil {
			return err
		}
		total := getFloat64(meta, keyTotalScalar) + scalar
		return putFloat64(meta, keyTotalScalar, total)
	})
}

// SubmitMask implements chain.Store (spec.md §4.4 op 4).
func (s *Store) SubmitMask(_ context.Context, pkSum, mask []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if getPhase(meta) != chain.Sum2 {
			return chainerrors.ErrPhaseMismatch
		}
		sumDict := tx.Bucket(sumDictBucket)
		if sumDict.Get(pkSum) == nil {
			return chainerrors.ErrNotFound
		}
		if err := sumDict.Delete(pkSum); err != nil {
			return err
		}

		maskDict := tx.Bucket(maskDictBucket)
		key := fmt.Sprintf("%x", mask)
		count := uint64(0)
		if v := maskDict.Get([]byte(key)); v != nil {
			count = binary.BigEndian.Uint64(v)
		}
		count++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return maskDict.Put([]byte(key), buf)
	})
}

// AdvancePhase implements chain.Store (spec.md §4.4 op 5).
func (s *Store) AdvancePhase(_ context.Context, expected, next chain.Phase, deadline int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if getPhase(meta) != expected {
			return chainerrors.ErrStoreConflict
		}
		if next == chain.Sum2 {
			sumDict := tx.Bucket(sumDictBucket)
			if err := putUint64(meta, keySum2Base, uint64(sumDict.Stats().KeyN)); err != nil {
				return err
			}
		}
		if err := putPhase(meta, next); err != nil {
			return err
		}
		return putInt64(meta, keyPhaseDeadline, deadline)
	})
}

// StartNewRound implements chain.Store (spec.md §4.4 op 6): it resets
// exactly the seven tables spec.md §6 names and retains committed
// global_model/* entries untouched.
func (s *Store) StartNewRound(_ context.Context, seed []byte, deadline int64) (uint64, error) {
	var round uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		phase := getPhase(meta)
		if phase != chain.Idle && phase != chain.Failed {
			return chainerrors.ErrPhaseMismatch
		}

		for _, name := range [][]byte{sumDictBucket, seedDictBucket, updatersBucket, maskDictBucket} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		round = getUint64(meta, keyRound) + 1
		if err := putUint64(meta, keyRound, round); err != nil {
			return err
		}
		if err := putPhase(meta, chain.Sum); err != nil {
			return err
		}
		if err := meta.Put([]byte(keySeed), seed); err != nil {
			return err
		}
		if err := putInt64(meta, keyPhaseDeadline, deadline); err != nil {
			return err
		}
		if err := meta.Delete([]byte(keyAggMasked)); err != nil {
			return err
		}
		return putFloat64(meta, keyTotalScalar, 0)
	})
	return round, err
}

// Snapshot implements chain.Store (spec.md §4.4 op 7).
func (s *Store) Snapshot(_ context.Context) (*chain.RoundTables, error) {
	out := &chain.RoundTables{}
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		out.Round = getUint64(meta, keyRound)
		out.Phase = getPhase(meta)
		out.Seed = append([]byte{}, meta.Get([]byte(keySeed))...)
		out.AggMasked = append([]byte{}, meta.Get([]byte(keyAggMasked))...)
		out.TotalScalar = getFloat64(meta, keyTotalScalar)
		out.PhaseDeadline = getInt64(meta, keyPhaseDeadline)
		out.Sum2Base = int(getUint64(meta, keySum2Base))

		sumDict := tx.Bucket(sumDictBucket)
		if err := sumDict.ForEach(func(k, v []byte) error {
			out.SumDict = append(out.SumDict, chain.SumEntry{
				PublicKey: append([]byte{}, k...),
				Ephemeral: append([]byte{}, v...),
			})
			return nil
		}); err != nil {
			return err
		}

		seedDict := tx.Bucket(seedDictBucket)
		if err := seedDict.ForEach(func(_, v []byte) error {
			var sh chain.SeedShare
			if err := json.Unmarshal(v, &sh); err != nil {
				return err
			}
			out.SeedDict = append(out.SeedDict, sh)
			return nil
		}); err != nil {
			return err
		}

		updaters := tx.Bucket(updatersBucket)
		if err := updaters.ForEach(func(k, _ []byte) error {
			out.UpdateParticipants = append(out.UpdateParticipants, append([]byte{}, k...))
			return nil
		}); err != nil {
			return err
		}

		maskDict := tx.Bucket(maskDictBucket)
		return maskDict.ForEach(func(k, v []byte) error {
			mask, err := hex.DecodeString(string(k))
			if err != nil {
				mask = append([]byte{}, k...)
			}
			out.MaskDict = append(out.MaskDict, chain.MaskCount{
				Mask:  mask,
				Count: int(binary.BigEndian.Uint64(v)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutGlobalModel implements chain.Store.
func (s *Store) PutGlobalModel(_ context.Context, round uint64, model []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(globalModelBucket).Put(chain.RoundToBytes(round), model)
	})
}

// GlobalModel implements chain.Store.
func (s *Store) GlobalModel(_ context.Context, round uint64) ([]byte, error) {
	var model []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(globalModelBucket).Get(chain.RoundToBytes(round))
		if v == nil {
			return chainerrors.ErrNotFound
		}
		model = append([]byte{}, v...)
		return nil
	})
	return model, err
}

var _ chain.Store = (*Store)(nil)
