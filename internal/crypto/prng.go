package crypto

import (
	"golang.org/x/crypto/sha3"
)

// PRNG deterministically expands seed into n bytes of pseudo-random
// output (spec.md §4.1's `prng(seed, len) -> bytes`). Used by a
// participant to expand a mask seed into its mask stream — potentially
// many megabytes for a large model (mask.ExpandMask requests l*byteLen
// bytes). Role selection does not use it: internal/selection hashes the
// role signature with SHA-256. Deterministic given (seed),
// with no hidden global state, as required by spec.md §4.1.
//
// SHAKE256 rather than HKDF-Expand: HKDF is limited to 255*HashLen bytes
// of output per RFC 5869 (8160 bytes for SHA-256), which mask.ExpandMask
// can exceed for a model with many parameters. SHAKE256 is a sponge-based
// extendable-output function with no such ceiling — Read can be called
// for as many bytes as the caller needs — while remaining a pure
// function of seed, so the determinism contract is unaffected.
func PRNG(seed []byte, n int) ([]byte, error) {
	xof := sha3.NewShake256()
	if _, err := xof.Write(seed); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := xof.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SeedLabel namespaces a PRNG seed by round and phase so that
// PRNG(SeedLabel(r, phase, secret), n) never collides across rounds or
// phases even if a participant reuses secret material (spec.md §4.1:
// "deterministic PRNG seeding from round+phase").
func SeedLabel(round uint64, phase string, secret []byte) []byte {
	label := make([]byte, 0, len(secret)+len(phase)+8)
	label = append(label, []byte(phase)...)
	label = append(label, byte(round>>56), byte(round>>48), byte(round>>40), byte(round>>32),
		byte(round>>24), byte(round>>16), byte(round>>8), byte(round))
	label = append(label, secret...)
	return label
}
