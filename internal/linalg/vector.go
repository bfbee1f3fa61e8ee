package linalg

import "math"

// #region vector-ops
// Dot returns the inner product of a and b.
func Dot(a, b []float64) float64 {
	var sum float64
	for i, x := range a {
		sum += x * b[i]
	}
	return sum
}

// AddVec returns a + b as a new slice.
func AddVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i, x := range a {
		out[i] = x + b[i]
	}
	return out
}

// SubVec returns a − b as a new slice.
func SubVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i, x := range a {
		out[i] = x - b[i]
	}
	return out
}

// ScaleVec returns s·a as a new slice.
func ScaleVec(a []float64, s float64) []float64 {
	out := make([]float64, len(a))
	for i, x := range a {
		out[i] = s * x
	}
	return out
}

// Outer returns the outer product a·bᵀ.
func Outer(a, b []float64) Matrix {
	out := NewMatrix(len(a), len(b))
	for i, x := range a {
		for j, y := range b {
			out[i][j] = x * y
		}
	}
	return out
}

// MeanVec returns the element-wise mean of the given vectors.
// Returns nil for an empty input.
func MeanVec(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			out[i] += x
		}
	}
	inv := 1.0 / float64(len(vecs))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Norm returns the L2 norm of a.
func Norm(a []float64) float64 {
	return math.Sqrt(Dot(a, a))
}

// #endregion vector-ops
