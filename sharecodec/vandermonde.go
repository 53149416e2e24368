package sharecodec

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/field"
)

// VandermondeMatrix builds a rows x cols matrix V where V[i][j] = xs[i]^j,
// used by the preprocessing extractor (§4.4: "Multiply each column
// with a fixed (n-t)x(2t+1) Vandermonde matrix") through
// ExtractRandomness.
func VandermondeMatrix(xs []field.Element, cols int) [][]field.Element {
	rows := len(xs)
	m := make([][]field.Element, rows)
	for i := range m {
		row := make([]field.Element, cols)
		power := field.One()
		for j := 0; j < cols; j++ {
			row[j] = power
			power = power.Mul(xs[i])
		}
		m[i] = row
	}
	return m
}

// MatVecMul computes m * v for a matrix built by VandermondeMatrix (or
// any rows x cols matrix) against a length-cols vector.
func MatVecMul(m [][]field.Element, v []field.Element) ([]field.Element, error) {
	out := make([]field.Element, len(m))
	for i, row := range m {
		if len(row) != len(v) {
			return nil, fmt.Errorf("sharecodec: matrix row length %d != vector length %d", len(row), len(v))
		}
		acc := field.Zero()
		for j, coeff := range row {
			acc = acc.Add(coeff.Mul(v[j]))
		}
		out[i] = acc
	}
	return out, nil
}

// ExtractRandomness implements the Vandermonde randomness extractor of
// §4.4: given input columns of equal length cols (one per batch slot,
// one entry per contributing dealer), it returns len(xs) rows of
// output sharings; out[i][c] is the dot product of the fixed
// Vandermonde row xs[i]^0..xs[i]^(cols-1) with input column c. Honest-majority security follows because no t-subset
// of columns can cancel the honest contribution to any output row
// (Vandermonde matrices are invertible on any square submatrix).
func ExtractRandomness(xs []field.Element, columns [][]field.Element) ([][]field.Element, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("sharecodec: no columns to extract from")
	}
	cols := len(columns[0])
	vm := VandermondeMatrix(xs, cols)
	out := make([][]field.Element, len(xs))
	for i := range out {
		out[i] = make([]field.Element, len(columns))
	}
	for colIdx, column := range columns {
		if len(column) != cols {
			return nil, fmt.Errorf("sharecodec: column %d has length %d, want %d", colIdx, len(column), cols)
		}
		row, err := MatVecMul(vm, column)
		if err != nil {
			return nil, err
		}
		for i, v := range row {
			out[i][colIdx] = v
		}
	}
	return out, nil
}
