package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func randomVectors(rng *rand.Rand, n, dim int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = rng.NormFloat64() * 10
		}
		out[i] = v
	}
	return out
}

func TestMean(t *testing.T) {
	mean, err := Mean([][]float64{{1, 1}, {1, 3}, {5, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 7.0/3.0, mean[0], epsilon)
	assert.InDelta(t, 3.0, mean[1], epsilon)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float64
		want    []float64
	}{
		{"odd", [][]float64{{1, 1}, {1, 3}, {5, 5}}, []float64{1, 3}},
		{"even", [][]float64{{4, 0}, {1, 8}, {3, 2}, {2, 6}}, []float64{2.5, 4}},
		{"single", [][]float64{{7, -2}}, []float64{7, -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Median(tt.vectors)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, epsilon)
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	in := [][]float64{{3}, {1}, {2}}
	_, err := Median(in)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3}, {1}, {2}}, in)
}

func TestAggregatesRejectBadInput(t *testing.T) {
	for name, fn := range map[string]func([][]float64) ([]float64, error){"mean": Mean, "median": Median} {
		t.Run(name, func(t *testing.T) {
			_, err := fn(nil)
			assert.ErrorIs(t, err, ErrEmptyInput)

			_, err = fn([][]float64{{1, 2}, {1}})
			assert.ErrorIs(t, err, ErrDimensionMismatch)
			var dm *DimensionMismatchError
			require.ErrorAs(t, err, &dm)
			assert.Equal(t, 2, dm.Expected)
			assert.Equal(t, 1, dm.Actual)
		})
	}
}

func TestMeanProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n, dim := 1+rng.Intn(20), 1+rng.Intn(16)
		vectors := randomVectors(rng, n, dim)
		mean, err := Mean(vectors)
		require.NoError(t, err)
		require.Len(t, mean, dim)
		for i := 0; i < dim; i++ {
			var sum float64
			for _, v := range vectors {
				sum += v[i]
			}
			assert.InDelta(t, sum/float64(n), mean[i], epsilon)
		}
	}
}

func TestMedianProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n, dim := 1+rng.Intn(20), 1+rng.Intn(16)
		vectors := randomVectors(rng, n, dim)
		median, err := Median(vectors)
		require.NoError(t, err)
		require.Len(t, median, dim)
		for i := 0; i < dim; i++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			found := false
			for _, v := range vectors {
				lo = math.Min(lo, v[i])
				hi = math.Max(hi, v[i])
				if v[i] == median[i] {
					found = true
				}
			}
			assert.GreaterOrEqual(t, median[i], lo)
			assert.LessOrEqual(t, median[i], hi)
			if n%2 == 1 {
				assert.True(t, found, "odd count median must be an input value")
			}
		}

		// Input order does not matter.
		shuffled := append([][]float64(nil), vectors...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		again, err := Median(shuffled)
		require.NoError(t, err)
		assert.Equal(t, median, again)
	}
}
