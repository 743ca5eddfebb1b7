package mask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Group: Power2, Data: F32, Bound: B2, Model: M3}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := testConfig()
	model := []float64{1.5, -2.25, 0, 3.9}

	v, err := Encode(cfg, model, 1.0)
	require.NoError(t, err)
	require.Equal(t, len(model), v.Len())

	decoded, err := Decode(cfg, v, 1.0)
	require.NoError(t, err)
	for i := range model {
		require.InDelta(t, model[i], decoded[i], 1e-3)
	}
}

func TestEncodeRejectsOutOfBound(t *testing.T) {
	cfg := testConfig()
	_, err := Encode(cfg, []float64{100}, 1.0)
	require.Error(t, err)
}

func TestAddIsCommutative(t *testing.T) {
	cfg := testConfig()
	a, err := Encode(cfg, []float64{1, 2, 3}, 1.0)
	require.NoError(t, err)
	b, err := Encode(cfg, []float64{-1, 0.5, 2}, 1.0)
	require.NoError(t, err)

	ab, err := Add(a, b)
	require.NoError(t, err)
	ba, err := Add(b, a)
	require.NoError(t, err)
	require.Equal(t, ab.Bytes(), ba.Bytes())
}

func TestAddRejectsLengthMismatch(t *testing.T) {
	cfg := testConfig()
	a, err := Encode(cfg, []float64{1, 2, 3}, 1.0)
	require.NoError(t, err)
	b, err := Encode(cfg, []float64{1, 2}, 1.0)
	require.NoError(t, err)
	_, err = Add(a, b)
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	cfg := testConfig()
	v, err := Encode(cfg, []float64{1, -2, 3, -4}, 1.0)
	require.NoError(t, err)

	raw := v.Bytes()
	restored, err := FromBytes(cfg, raw, v.Len())
	require.NoError(t, err)
	require.Equal(t, raw, restored.Bytes())
}

func TestUnmaskRecoversWeightedSum(t *testing.T) {
	cfg := testConfig()
	l := 4

	m1 := []float64{0.1, 0.2, -0.1, 0.3}
	m2 := []float64{-0.2, 0.1, 0.1, -0.1}

	v1, err := Encode(cfg, m1, 1.0)
	require.NoError(t, err)
	v2, err := Encode(cfg, m2, 1.0)
	require.NoError(t, err)

	aggMasked, err := Add(v1, v2)
	require.NoError(t, err)

	maskVec, err := NewVector(cfg, l) // zero mask: nothing to unmask
	require.NoError(t, err)

	model, err := Unmask(cfg, aggMasked, maskVec, 2.0)
	require.NoError(t, err)
	for i := range model {
		want := (m1[i] + m2[i]) / 2
		require.InDelta(t, want, model[i], 1e-3)
	}
}

func TestUnmaskRejectsLengthMismatch(t *testing.T) {
	cfg := testConfig()
	v1, err := NewVector(cfg, 4)
	require.NoError(t, err)
	v2, err := NewVector(cfg, 3)
	require.NoError(t, err)
	_, err = Unmask(cfg, v1, v2, 1.0)
	require.Error(t, err)
}

func TestExpandMaskIsDeterministic(t *testing.T) {
	cfg := testConfig()
	prng := func(seed []byte, n int) ([]byte, error) {
		out := make([]byte, n)
		for i := range out {
			out[i] = seed[i%len(seed)]
		}
		return out, nil
	}

	v1, err := ExpandMask(cfg, 8, prng, []byte("seed-a"))
	require.NoError(t, err)
	v2, err := ExpandMask(cfg, 8, prng, []byte("seed-a"))
	require.NoError(t, err)
	require.Equal(t, v1.Bytes(), v2.Bytes())

	v3, err := ExpandMask(cfg, 8, prng, []byte("seed-b"))
	require.NoError(t, err)
	require.NotEqual(t, v1.Bytes(), v3.Bytes())
}

func TestModulusStableAcrossGroupTypes(t *testing.T) {
	prime := Config{Group: Prime, Data: F32, Bound: B0, Model: M3}
	power2 := Config{Group: Power2, Data: F32, Bound: B0, Model: M3}

	qPrime, err := prime.Modulus()
	require.NoError(t, err)
	qPower2, err := power2.Modulus()
	require.NoError(t, err)

	require.True(t, qPrime.BitLen() <= 35)
	require.Equal(t, uint(35), uint(qPower2.BitLen()-1))
}
