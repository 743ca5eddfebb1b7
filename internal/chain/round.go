// Package chain defines the state store contract (C4, spec.md §4.4):
// the only legal way the coordinator's round tables are mutated, and the
// data types those tables hold.
package chain

import "encoding/binary"

// Phase is one of the six states the round state machine can be in
// (spec.md §3).
type Phase int

const (
	Idle Phase = iota
	Sum
	Update
	Sum2
	Unmask
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Sum:
		return "Sum"
	case Update:
		return "Update"
	case Sum2:
		return "Sum2"
	case Unmask:
		return "Unmask"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RoundToBytes serializes a round number to a fixed-length big-endian
// key, the same encoding the teacher uses for its append-only beacon
// log (internal/chain/store.go's RoundToBytes), reused here as the key
// of each committed model in the boltdb backend's global_model bucket.
func RoundToBytes(r uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, r)
	return key
}

// BytesToRound inverts RoundToBytes.
func BytesToRound(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
