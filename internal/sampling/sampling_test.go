package sampling

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReturnsExactlyN(t *testing.T) {
	samples, err := Generate(Params{Distribution: Normal, Mean: 10, StdDev: 2, N: 100, Source: rand.NewSource(42)})
	require.NoError(t, err)
	require.Len(t, samples, 100)
	for _, s := range samples {
		assert.False(t, math.IsNaN(s) || math.IsInf(s, 0))
	}
}

func TestUnknownDistributionFallsBackToNormal(t *testing.T) {
	samples, err := Generate(Params{Distribution: Distribution("bogus"), Mean: 5, StdDev: 1, N: 50, Source: rand.NewSource(1)})
	require.NoError(t, err)
	require.Len(t, samples, 50)
}

func TestLogNormalSamplesArePositive(t *testing.T) {
	samples, err := Generate(Params{Distribution: LogNormal, Mean: 5, StdDev: 2, N: 200, Source: rand.NewSource(7)})
	require.NoError(t, err)
	for _, s := range samples {
		assert.Greater(t, s, 0.0)
	}
}

func TestTruncatedNormalRespectsBounds(t *testing.T) {
	samples, err := Generate(Params{Distribution: TruncatedNormal, Mean: 0, StdDev: 1, N: 200, Min: -1, Max: 1, Source: rand.NewSource(3)})
	require.NoError(t, err)
	for _, s := range samples {
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestZeroNReturnsError(t *testing.T) {
	_, err := Generate(Params{Distribution: Normal, N: 0})
	assert.Error(t, err)
}
