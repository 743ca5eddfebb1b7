package chain

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// SumEntry is one (pk_s, pk_e) pair registered in SumDict during Sum.
type SumEntry struct {
	PublicKey  []byte // pk_s, the sum participant's signing public key
	Ephemeral  []byte // pk_e, the sum participant's per-round encryption public key
}

// SeedShare is one encrypted mask-seed share an update participant
// addresses to a specific sum participant.
type SeedShare struct {
	SumPublicKey    []byte // pk_s_sum, the outer key of SeedDict
	UpdatePublicKey []byte // pk_s_update, the inner key of SeedDict
	Ciphertext      []byte // sealed-box ciphertext of the mask-seed share
}

// MaskCount is one distinct mask value reported in Sum2 and how many
// sum participants reported exactly that value (spec.md §3's MaskDict).
type MaskCount struct {
	Mask  []byte
	Count int
}

// RoundTables is a read-only, point-in-time view of every per-round
// table plus the scalar round/phase state, as returned by Snapshot
// (spec.md §4.4 op 7). Holding a RoundTables never permits mutation —
// only the Store's named atomic operations do.
type RoundTables struct {
	Round uint64
	Phase Phase
	Seed  []byte

	SumDict            []SumEntry
	SeedDict           []SeedShare
	UpdateParticipants [][]byte // pk_s_update set

	AggMasked   []byte // encoded mask.Vector, or nil/empty if no updates yet
	TotalScalar float64

	MaskDict []MaskCount

	// Sum2Base is |SumDict| at the moment Update->Sum2 was committed: the
	// number of sum participants Sum2 started with. Since submit_mask
	// removes entries from SumDict as masks arrive, the number of Sum2
	// submissions so far is Sum2Base - len(SumDict).
	Sum2Base int

	// PhaseDeadline is the wall-clock instant (unix seconds) by which the
	// current phase must have transitioned, restored so a recovering
	// coordinator resumes the same deadline it had before the crash
	// (spec.md §8 property 6, §8 scenario S6).
	PhaseDeadline int64
}

// SumDictKeys returns just the pk_s set of SumDict, the shape required
// when validating an update participant's local seed dict
// (spec.md §4.4 op 2).
func (t *RoundTables) SumDictKeys() [][]byte {
	keys := make([][]byte, len(t.SumDict))
	for i, e := range t.SumDict {
		keys[i] = e.PublicKey
	}
	return keys
}

// ValidateSeedDictShape checks spec.md §8 testable property 3 at the
// moment the aggregator is about to read SeedDict: every sum
// participant's inner mapping key-set must equal the UpdateParticipants
// set, and every update participant must have contributed exactly one
// share per sum participant. The frozen sum-participant set is read
// back out of SeedDict itself rather than the live SumDict, since
// submit_mask (spec.md §4.4 op 4) removes entries from SumDict as Sum2
// proceeds — by the time Unmask runs, SumDict may already be empty even
// though SeedDict still correctly reflects what was frozen at Update
// start. Per-entry registration already enforces this share-by-share at
// RegisterUpdate time; this re-checks the whole snapshot in one pass
// before unmasking, folding every violation found into a single error
// instead of stopping at the first one, the same accumulate-then-report
// shape the teacher uses for its own multi-step validation failures.
func (t *RoundTables) ValidateSeedDictShape() error {
	wantUpdate := t.UpdateParticipants

	gotShares := make(map[string]map[string]bool)
	wantSum := make(map[string]bool)
	for _, sh := range t.SeedDict {
		wantSum[string(sh.SumPublicKey)] = true
		inner, ok := gotShares[string(sh.SumPublicKey)]
		if !ok {
			inner = make(map[string]bool)
			gotShares[string(sh.SumPublicKey)] = inner
		}
		inner[string(sh.UpdatePublicKey)] = true
	}

	var result *multierror.Error
	for sumPkStr := range wantSum {
		inner := gotShares[sumPkStr]
		for _, updatePk := range wantUpdate {
			if !inner[string(updatePk)] {
				result = multierror.Append(result, fmt.Errorf(
					"seed dict: sum participant %x missing share from update participant %x",
					[]byte(sumPkStr), updatePk))
			}
		}
		for updatePkStr := range inner {
			if !containsKey(wantUpdate, updatePkStr) {
				result = multierror.Append(result, fmt.Errorf(
					"seed dict: unexpected share for update participant %x under sum %x",
					[]byte(updatePkStr), []byte(sumPkStr)))
			}
		}
	}
	return result.ErrorOrNil()
}

func containsKey(keys [][]byte, s string) bool {
	for _, k := range keys {
		if bytes.Equal(k, []byte(s)) {
			return true
		}
	}
	return false
}
