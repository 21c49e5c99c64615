package sysutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEMA(t *testing.T) {
	cases := []struct {
		name   string
		alpha  float64
		inputs []float64
		want   float64
	}{
		{"first sample seeds", 0.5, []float64{10}, 10},
		{"alpha zero freezes after seed", 0, []float64{10, 20, 30}, 10},
		{"alpha one tracks input", 1, []float64{10, 20, 30}, 30},
		{"half blend converges", 0.5, []float64{0, 10, 10, 10, 10, 10}, 9.6875},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEMA(tc.alpha)
			var got float64
			for _, v := range tc.inputs {
				got = e.Next(v)
			}
			t.Logf("alpha=%.2f inputs=%v -> %.6f", tc.alpha, tc.inputs, got)
			require.InDelta(t, tc.want, got, 1e-6)
		})
	}
}

func TestDeltaU64(t *testing.T) {
	require.Equal(t, uint64(5), DeltaU64(10, 5))
	require.Equal(t, uint64(0), DeltaU64(5, 10), "counter reset should yield 0, not wrap")
}

func TestSafeDiv(t *testing.T) {
	require.InDelta(t, 2.0, SafeDiv(10, 5), 1e-12)
	require.Equal(t, 0.0, SafeDiv(10, 0))
	require.Equal(t, 0.0, SafeDiv(10, 1e-13))
}

func TestClamp01(t *testing.T) {
	require.Equal(t, 0.0, Clamp01(-1))
	require.Equal(t, 1.0, Clamp01(2))
	require.Equal(t, 0.0, Clamp01(math.NaN()))
	require.InDelta(t, 0.5, Clamp01(0.5), 1e-12)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 1.0, Clamp(-5, 1, 10))
	require.Equal(t, 10.0, Clamp(50, 1, 10))
	require.Equal(t, 1.0, Clamp(math.NaN(), 1, 10))
}

func TestPow(t *testing.T) {
	require.Equal(t, 0.0, Pow(0, 2))
	require.Equal(t, 0.0, Pow(-1, 2))
	require.InDelta(t, 4.0, Pow(2, 2), 1e-9)
	require.InDelta(t, 0.25, Pow(0.5, 2), 1e-9)
}

func TestSmoothstep(t *testing.T) {
	require.Equal(t, 0.0, Smoothstep(-1))
	require.Equal(t, 1.0, Smoothstep(2))
	require.InDelta(t, 0.5, Smoothstep(0.5), 1e-12)
	require.InDelta(t, 0.104, Smoothstep(0.2), 1e-3)
}
