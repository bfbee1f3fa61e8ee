package linalg

import "math"

// #region matrix-type
// Matrix is a dense row-major matrix of float64.
type Matrix [][]float64

// NewMatrix allocates a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// Identity returns the n×n identity matrix.
func Identity(n int) Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m) }

// Cols returns the number of columns (0 for an empty matrix).
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Clone returns a deep copy of the matrix.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		copy(out[i], row)
	}
	return out
}

// #endregion matrix-type

// #region ops
// Mul computes the matrix product m·b. Dimensions must agree; the inner
// dimension is taken from m's column count.
func (m Matrix) Mul(b Matrix) Matrix {
	rows, inner, cols := m.Rows(), m.Cols(), b.Cols()
	out := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for k := 0; k < inner; k++ {
			if m[i][k] == 0 {
				continue
			}
			mik := m[i][k]
			for j := 0; j < cols; j++ {
				out[i][j] += mik * b[k][j]
			}
		}
	}
	return out
}

// MulVec computes the matrix-vector product m·v.
func (m Matrix) MulVec(v []float64) []float64 {
	out := make([]float64, m.Rows())
	for i, row := range m {
		var sum float64
		for j, x := range row {
			sum += x * v[j]
		}
		out[i] = sum
	}
	return out
}

// Transpose returns mᵀ.
func (m Matrix) Transpose() Matrix {
	out := NewMatrix(m.Cols(), m.Rows())
	for i, row := range m {
		for j, x := range row {
			out[j][i] = x
		}
	}
	return out
}

// Add returns m + b.
func (m Matrix) Add(b Matrix) Matrix {
	out := NewMatrix(m.Rows(), m.Cols())
	for i, row := range m {
		for j, x := range row {
			out[i][j] = x + b[i][j]
		}
	}
	return out
}

// Sub returns m − b.
func (m Matrix) Sub(b Matrix) Matrix {
	out := NewMatrix(m.Rows(), m.Cols())
	for i, row := range m {
		for j, x := range row {
			out[i][j] = x - b[i][j]
		}
	}
	return out
}

// Scale returns s·m.
func (m Matrix) Scale(s float64) Matrix {
	out := NewMatrix(m.Rows(), m.Cols())
	for i, row := range m {
		for j, x := range row {
			out[i][j] = s * x
		}
	}
	return out
}

// Symmetrize averages m with its transpose. Covariance updates accumulate
// asymmetry from rounding; filters call this after every predict step.
func (m Matrix) Symmetrize() Matrix {
	n := m.Rows()
	out := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i][j] = 0.5 * (m[i][j] + m[j][i])
		}
	}
	return out
}

// Trace returns the sum of diagonal elements.
func (m Matrix) Trace() float64 {
	var t float64
	for i := range m {
		t += m[i][i]
	}
	return t
}

// #endregion ops

// #region inverse
// singularPivot is the pivot magnitude below which a matrix is treated as
// numerically singular during elimination.
const singularPivot = 1e-10

// regularizedDiag is the diagonal value of the fallback inverse returned for
// near-singular input.
const regularizedDiag = 1.0

// Inverse computes m⁻¹ by Gauss-Jordan elimination with partial pivoting.
// A near-singular input (pivot magnitude < 1e-10) is not an error: the
// method returns a large-diagonal regularized matrix so that a degenerate
// covariance can never halt a filter. Callers that need an accurate inverse
// must check conditioning themselves.
func (m Matrix) Inverse() Matrix {
	n := m.Rows()
	a := m.Clone()
	inv := Identity(n)

	for col := 0; col < n; col++ {
		// Partial pivot: largest magnitude in this column at or below the diagonal.
		pivotRow := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivotRow][col]) {
				pivotRow = r
			}
		}
		if math.Abs(a[pivotRow][col]) < singularPivot {
			return regularizedInverse(n)
		}
		if pivotRow != col {
			a[col], a[pivotRow] = a[pivotRow], a[col]
			inv[col], inv[pivotRow] = inv[pivotRow], inv[col]
		}

		pivot := a[col][col]
		for j := 0; j < n; j++ {
			a[col][j] /= pivot
			inv[col][j] /= pivot
		}

		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			factor := a[r][col]
			for j := 0; j < n; j++ {
				a[r][j] -= factor * a[col][j]
				inv[r][j] -= factor * inv[col][j]
			}
		}
	}
	return inv
}

// regularizedInverse is the fallback returned when elimination meets a
// near-zero pivot: a near-identity that keeps downstream gains bounded.
func regularizedInverse(n int) Matrix {
	out := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		out[i][i] = regularizedDiag
	}
	return out
}

// #endregion inverse
