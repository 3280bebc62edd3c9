package vector

import "sort"

// Mean returns the coordinate-wise arithmetic mean of vectors.
func Mean(vectors [][]float64) ([]float64, error) {
	dim, err := commonDimension(vectors)
	if err != nil {
		return nil, err
	}
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range sum {
		sum[i] /= n
	}
	return sum, nil
}

// Median returns the coordinate-wise median of vectors. Each coordinate is
// sorted independently; an even count yields the mean of the two middle
// values.
func Median(vectors [][]float64) ([]float64, error) {
	dim, err := commonDimension(vectors)
	if err != nil {
		return nil, err
	}
	n := len(vectors)
	column := make([]float64, n)
	out := make([]float64, dim)
	for i := 0; i < dim; i++ {
		for j, v := range vectors {
			column[j] = v[i]
		}
		sort.Float64s(column)
		if n%2 == 0 {
			out[i] = (column[n/2-1] + column[n/2]) / 2
		} else {
			out[i] = column[n/2]
		}
	}
	return out, nil
}

// commonDimension validates vectors share one non-zero length and returns it.
func commonDimension(vectors [][]float64) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptyInput
	}
	dim := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) != dim {
			return 0, &DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
	}
	return dim, nil
}
