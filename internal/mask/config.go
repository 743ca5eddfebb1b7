// Package mask implements the fixed-point model <-> integer vector
// bijection and the modular mask arithmetic the PET protocol is built
// on (C2, spec.md §4.2).
package mask

import (
	"fmt"
	"math/big"
)

// GroupType selects the finite group the masked model lives in.
type GroupType int

const (
	// Prime selects a large prime-order group Z_q.
	Prime GroupType = iota
	// Power2 selects a power-of-two modulus 2^k, which admits cheaper
	// modular reduction at the cost of a slightly weaker group.
	Power2
)

// DataType selects the integer width used to represent one fixed-point
// entry before it is reduced mod q.
type DataType int

const (
	F32 DataType = iota
	F64
)

// BoundType selects the maximum magnitude a model entry may have prior
// to encoding; it fixes how many bits of headroom the bijection reserves
// above the fractional precision.
type BoundType int

const (
	// B0 bounds entries to [-1, 1).
	B0 BoundType = iota
	// B2 bounds entries to [-4, 4).
	B2
	// B4 bounds entries to [-16, 16).
	B4
)

// ModelType selects the vector-width class, i.e. how many bits are
// reserved for L when deriving the modulus (kept distinct from the
// runtime L itself so operators can size q for a family of models
// without recompiling per L).
type ModelType int

const (
	M3 ModelType = iota
	M6
	M9
	M12
)

// Config is M from spec.md §3: group_type, data_type, bound_type,
// model_type. It determines q and the bijection bit-for-bit; two
// coordinators running the same Config and L MUST agree on q.
type Config struct {
	Group GroupType
	Data  DataType
	Bound BoundType
	Model ModelType
}

func (c Config) dataBits() uint {
	switch c.Data {
	case F32:
		return 32
	case F64:
		return 64
	default:
		return 32
	}
}

func (c Config) boundExponent() uint {
	switch c.Bound {
	case B0:
		return 0
	case B2:
		return 2
	case B4:
		return 4
	default:
		return 0
	}
}

func (c Config) modelExponent() uint {
	switch c.Model {
	case M3:
		return 3
	case M6:
		return 6
	case M9:
		return 9
	case M12:
		return 12
	default:
		return 3
	}
}

// fixedPrimes is a small table of primes used when Group == Prime,
// indexed by the total bit-width the configuration calls for. It is
// filled once at package init by a deterministic search, so Modulus()
// returns the same prime for a given width on every node.
var fixedPrimes = map[uint]*big.Int{
	// For each width: the largest probable prime at or below
	// 2^bits - 189, found by stepping down over odd candidates.
}

func init() {
	for _, bits := range []uint{
		35, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 48,
		67, 69, 70, 71, 72, 73, 74, 75, 76, 77, 78, 80,
	} {
		p := new(big.Int).Lsh(big.NewInt(1), bits)
		p.Sub(p, big.NewInt(189))
		for !p.ProbablyPrime(32) {
			p.Sub(p, big.NewInt(2))
		}
		fixedPrimes[bits] = p
	}
}

// totalBits returns the bit-width reserved for one vector entry before
// modular reduction: data width, plus bound headroom, plus model-class
// headroom, matching spec.md's "model↔integer bijection... determined by
// M and L" contract (L itself only changes the vector length, not q).
func (c Config) totalBits() uint {
	return c.dataBits() + c.boundExponent() + c.modelExponent()
}

// Modulus returns q(M, L). L does not affect q under this bijection: L
// only changes how many independent entries exist, not their range.
func (c Config) Modulus() (*big.Int, error) {
	bits := c.totalBits()
	switch c.Group {
	case Power2:
		return new(big.Int).Lsh(big.NewInt(1), bits), nil
	case Prime:
		p, ok := fixedPrimes[bits]
		if !ok {
			return nil, fmt.Errorf("mask: no fixed prime modulus tabulated for %d bits (data=%v bound=%v model=%v)",
				bits, c.Data, c.Bound, c.Model)
		}
		return new(big.Int).Set(p), nil
	default:
		return nil, fmt.Errorf("mask: unknown group type %v", c.Group)
	}
}

// scaleFactor returns 2^dataBits, the fixed-point scale used to map a
// float in [-bound, bound) to an integer; negative results are then
// reduced mod q.
func (c Config) scaleFactor() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), c.dataBits())
}

// bound returns the maximum magnitude (exclusive) an entry may have,
// 2^boundExponent.
func (c Config) bound() float64 {
	exp := c.boundExponent()
	out := 1.0
	for i := uint(0); i < exp; i++ {
		out *= 2
	}
	return out
}
