package mask

import (
	"fmt"
	"math/big"
)

// Vector is a masked or unmasked model vector of length L: L integers in
// [0, q). Arithmetic on Vector is always performed mod q (spec.md §4.2).
type Vector struct {
	cfg Config
	q   *big.Int
	v   []*big.Int
}

// NewVector allocates a zero Vector of length l under cfg.
func NewVector(cfg Config, l int) (*Vector, error) {
	q, err := cfg.Modulus()
	if err != nil {
		return nil, err
	}
	v := make([]*big.Int, l)
	for i := range v {
		v[i] = big.NewInt(0)
	}
	return &Vector{cfg: cfg, q: q, v: v}, nil
}

// Len returns L.
func (vec *Vector) Len() int { return len(vec.v) }

// Modulus returns q for this vector's configuration.
func (vec *Vector) Modulus() *big.Int { return new(big.Int).Set(vec.q) }

// At returns entry i as a big.Int in [0, q).
func (vec *Vector) At(i int) *big.Int { return new(big.Int).Set(vec.v[i]) }

// Bytes returns a deterministic byte encoding of the vector, used as the
// map key for mask-plurality counting (spec.md §4.5) and for hashing.
func (vec *Vector) Bytes() []byte {
	byteLen := (vec.q.BitLen() + 7) / 8
	out := make([]byte, 0, byteLen*len(vec.v))
	for _, e := range vec.v {
		b := e.Bytes()
		pad := make([]byte, byteLen-len(b))
		out = append(out, pad...)
		out = append(out, b...)
	}
	return out
}

// FromBytes inverts Bytes, reconstructing a Vector of length l from its
// fixed-width big-endian encoding. Used by internal/aggregate to restore
// AggMasked from the store's byte-string representation.
func FromBytes(cfg Config, data []byte, l int) (*Vector, error) {
	q, err := cfg.Modulus()
	if err != nil {
		return nil, err
	}
	byteLen := (q.BitLen() + 7) / 8
	if len(data) != byteLen*l {
		return nil, fmt.Errorf("mask: FromBytes length mismatch: got %d, want %d", len(data), byteLen*l)
	}
	v := make([]*big.Int, l)
	for i := 0; i < l; i++ {
		chunk := data[i*byteLen : (i+1)*byteLen]
		v[i] = new(big.Int).SetBytes(chunk)
	}
	return &Vector{cfg: cfg, q: q, v: v}, nil
}

// Encode maps model (a []float64 of length L, each entry in
// [-bound, bound)) scaled by scalar, into the integer vector used on the
// wire, per spec.md §4.2's bijection. This runs on the participant side.
func Encode(cfg Config, model []float64, scalar float64) (*Vector, error) {
	vec, err := NewVector(cfg, len(model))
	if err != nil {
		return nil, err
	}
	bound := cfg.bound()
	scale := new(big.Float).SetInt(cfg.scaleFactor())
	for i, m := range model {
		scaled := m * scalar
		if scaled < -bound || scaled >= bound {
			return nil, fmt.Errorf("mask: entry %d (%.6f) out of bound [-%.2f, %.2f)", i, scaled, bound, bound)
		}
		fx := new(big.Float).Mul(big.NewFloat(scaled), scale)
		fixed, _ := fx.Int(nil)
		fixed.Mod(fixed, vec.q)
		vec.v[i] = fixed
	}
	return vec, nil
}

// Decode inverts Encode: given an unmasked integer vector and the total
// scalar weight that was folded in during aggregation, recovers the
// plaintext model (spec.md §4.2 `unmask`'s final "invert bijection and
// divide by total_scalar" step).
func Decode(cfg Config, vec *Vector, totalScalar float64) ([]float64, error) {
	if totalScalar == 0 {
		return nil, fmt.Errorf("mask: cannot decode with zero total scalar")
	}
	scale := new(big.Float).SetInt(cfg.scaleFactor())
	q := vec.q
	half := new(big.Int).Rsh(q, 1)

	out := make([]float64, vec.Len())
	for i, e := range vec.v {
		signed := new(big.Int).Set(e)
		if signed.Cmp(half) >= 0 {
			signed.Sub(signed, q)
		}
		fx := new(big.Float).Quo(new(big.Float).SetInt(signed), scale)
		f, _ := fx.Float64()
		out[i] = f / totalScalar
	}
	return out, nil
}

// Add computes a + b (mod q), the core commutative/associative identity
// the PET protocol exploits (spec.md §4.2). a and b must share the same
// configuration and length.
func Add(a, b *Vector) (*Vector, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("mask: add length mismatch: %d vs %d", a.Len(), b.Len())
	}
	if a.q.Cmp(b.q) != 0 {
		return nil, fmt.Errorf("mask: add modulus mismatch")
	}
	out := &Vector{cfg: a.cfg, q: a.q, v: make([]*big.Int, a.Len())}
	for i := range a.v {
		sum := new(big.Int).Add(a.v[i], b.v[i])
		sum.Mod(sum, a.q)
		out.v[i] = sum
	}
	return out, nil
}

// Sub computes a - b (mod q).
func Sub(a, b *Vector) (*Vector, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("mask: sub length mismatch: %d vs %d", a.Len(), b.Len())
	}
	if a.q.Cmp(b.q) != 0 {
		return nil, fmt.Errorf("mask: sub modulus mismatch")
	}
	out := &Vector{cfg: a.cfg, q: a.q, v: make([]*big.Int, a.Len())}
	for i := range a.v {
		diff := new(big.Int).Sub(a.v[i], b.v[i])
		diff.Mod(diff, a.q)
		out.v[i] = diff
	}
	return out, nil
}

// Unmask computes (aggregatedMasked - aggregatedMask) (mod q), then
// inverts the bijection and divides by totalScalar, producing the next
// global model (spec.md §4.2/§4.5). aggregatedMasked and aggregatedMask
// must have equal length.
func Unmask(cfg Config, aggregatedMasked, aggregatedMask *Vector, totalScalar float64) ([]float64, error) {
	if aggregatedMasked.Len() != aggregatedMask.Len() {
		return nil, fmt.Errorf("mask: unmask length mismatch: %d vs %d",
			aggregatedMasked.Len(), aggregatedMask.Len())
	}
	diff, err := Sub(aggregatedMasked, aggregatedMask)
	if err != nil {
		return nil, err
	}
	return Decode(cfg, diff, totalScalar)
}

// ExpandMask expands a random seed into a mask vector of length l,
// reduced mod q: μ = prng(σ)[0:l] mod q, per spec.md §4.2's encode
// operation. prng is typically internal/crypto.PRNG.
func ExpandMask(cfg Config, l int, prng func(seed []byte, n int) ([]byte, error), seed []byte) (*Vector, error) {
	q, err := cfg.Modulus()
	if err != nil {
		return nil, err
	}
	byteLen := (q.BitLen()+7)/8 + 1 // +1 byte of headroom before reducing
	raw, err := prng(seed, l*byteLen)
	if err != nil {
		return nil, err
	}
	v := make([]*big.Int, l)
	for i := 0; i < l; i++ {
		chunk := raw[i*byteLen : (i+1)*byteLen]
		e := new(big.Int).SetBytes(chunk)
		e.Mod(e, q)
		v[i] = e
	}
	return &Vector{cfg: cfg, q: q, v: v}, nil
}
