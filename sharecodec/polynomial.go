// Package sharecodec implements §4.1's Share Codec: polynomial
// construction, Lagrange and FFT evaluation, Vandermonde extraction, and
// the polynomial-on-points verifier used by output reconstruction and
// tuple verification. Field arithmetic is grounded on utils.Polynomial
// from the agreement-protocol reference in this corpus (Horner
// evaluation, Lagrange-at-zero via basis-polynomial products), adapted
// from math/big to this module's saferith-backed field.Element.
package sharecodec

import (
	"fmt"
	"io"

	"github.com/akhilsb/velox-mpc/field"
)

// Basis selects the evaluation-point convention used process-wide
// (§3: "EvaluationBasis").
type Basis int

const (
	// BasisAlgebraic fixes x_i = i+1.
	BasisAlgebraic Basis = iota
	// BasisFFT fixes x_i to the i-th element of a fixed root-of-unity
	// sequence of length n.
	BasisFFT
)

// Polynomial is a dense univariate polynomial over field.Element,
// coefficients in increasing degree order: Coeffs[0] is the constant
// term (the secret, for a sharing polynomial).
type Polynomial struct {
	Coeffs []field.Element
}

// Degree returns the polynomial's nominal degree (len(Coeffs)-1).
func (p *Polynomial) Degree() int {
	return len(p.Coeffs) - 1
}

// Evaluate computes p(x) via Horner's method.
func (p *Polynomial) Evaluate(x field.Element) field.Element {
	result := field.Zero()
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(p.Coeffs[i])
	}
	return result
}

// NewRandomPolynomial samples a degree-d polynomial with the given
// constant term (the secret), the rest of the coefficients uniform
// (§4.1 FFT mode, and the generic case underlying every t- and
// 2t-sharing the dealer produces).
func NewRandomPolynomial(degree int, secret field.Element, r io.Reader) (*Polynomial, error) {
	coeffs := make([]field.Element, degree+1)
	coeffs[0] = secret
	for i := 1; i <= degree; i++ {
		c, err := field.Random(r)
		if err != nil {
			return nil, fmt.Errorf("sharecodec: sampling coefficient %d: %w", i, err)
		}
		coeffs[i] = c
	}
	return &Polynomial{Coeffs: coeffs}, nil
}

// NewPolynomialFromCoeffs wraps a copy of an explicit coefficient
// vector.
func NewPolynomialFromCoeffs(coeffs []field.Element) *Polynomial {
	return &Polynomial{Coeffs: append([]field.Element(nil), coeffs...)}
}

// EvaluationPoint returns x_i for party index i under the given basis
// (§3). Index is 0-based (party.ID's underlying integer).
func EvaluationPoint(i int, basis Basis, roots []field.Element) (field.Element, error) {
	switch basis {
	case BasisAlgebraic:
		return field.FromUint64(uint64(i + 1)), nil
	case BasisFFT:
		if i < 0 || i >= len(roots) {
			return field.Element{}, fmt.Errorf("sharecodec: root index %d out of range (n=%d)", i, len(roots))
		}
		return roots[i], nil
	default:
		return field.Element{}, fmt.Errorf("sharecodec: unknown basis %d", basis)
	}
}

// EvaluationPoints returns x_0..x_{n-1} under the given basis.
func EvaluationPoints(n int, basis Basis, roots []field.Element) ([]field.Element, error) {
	out := make([]field.Element, n)
	for i := 0; i < n; i++ {
		x, err := EvaluationPoint(i, basis, roots)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// lagrangeBasisAtZero computes l_j(0) = prod_{m != j} (-x_m)/(x_j - x_m),
// the Lagrange basis polynomial for interpolation node j evaluated at 0.
func lagrangeBasisAtZero(xs []field.Element, j int) field.Element {
	num := field.One()
	den := field.One()
	for m := range xs {
		if m == j {
			continue
		}
		num = num.Mul(xs[m].Neg())
		den = den.Mul(xs[j].Sub(xs[m]))
	}
	return num.Mul(den.Inverse())
}

// InterpolateAtZero computes L(0) for the unique polynomial of degree
// len(xs)-1 passing through (xs[i], ys[i]).
func InterpolateAtZero(xs, ys []field.Element) (field.Element, error) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return field.Element{}, fmt.Errorf("sharecodec: mismatched or empty interpolation set (%d points, %d values)", len(xs), len(ys))
	}
	result := field.Zero()
	for j := range xs {
		result = result.Add(ys[j].Mul(lagrangeBasisAtZero(xs, j)))
	}
	return result, nil
}

// InterpolateAt computes L(x) for the unique polynomial of degree
// len(xs)-1 passing through (xs[i], ys[i]), evaluated at an arbitrary
// point x.
func InterpolateAt(xs, ys []field.Element, x field.Element) (field.Element, error) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return field.Element{}, fmt.Errorf("sharecodec: mismatched or empty interpolation set")
	}
	result := field.Zero()
	for j := range xs {
		num := field.One()
		den := field.One()
		for m := range xs {
			if m == j {
				continue
			}
			num = num.Mul(x.Sub(xs[m]))
			den = den.Mul(xs[j].Sub(xs[m]))
		}
		result = result.Add(ys[j].Mul(num).Mul(den.Inverse()))
	}
	return result, nil
}

// InterpolatePolynomial reconstructs the full coefficient vector of the
// unique degree len(xs)-1 polynomial through (xs[i], ys[i]), used by
// DealPRF to fix the PRF-seeded polynomial and by CheckPolynomialOnPoints
// to build the interpolant the redundant points are checked against.
func InterpolatePolynomial(xs, ys []field.Element) (*Polynomial, error) {
	n := len(xs)
	if n != len(ys) || n == 0 {
		return nil, fmt.Errorf("sharecodec: mismatched or empty interpolation set")
	}
	// Accumulate sum_j y_j * l_j(x) symbolically via the standard
	// O(n^2) expansion of each Lagrange basis polynomial's coefficients.
	coeffs := make([]field.Element, n)
	for i := range coeffs {
		coeffs[i] = field.Zero()
	}
	for j := 0; j < n; j++ {
		basis, err := lagrangeBasisCoeffs(xs, j)
		if err != nil {
			return nil, err
		}
		scale := ys[j]
		for i, c := range basis {
			coeffs[i] = coeffs[i].Add(c.Mul(scale))
		}
	}
	return &Polynomial{Coeffs: coeffs}, nil
}

// lagrangeBasisCoeffs expands l_j(x) = prod_{m!=j} (x - x_m)/(x_j - x_m)
// into its coefficient vector via iterative polynomial multiplication.
func lagrangeBasisCoeffs(xs []field.Element, j int) ([]field.Element, error) {
	n := len(xs)
	// numerator polynomial, built up factor by factor
	num := []field.Element{field.One()}
	den := field.One()
	for m := 0; m < n; m++ {
		if m == j {
			continue
		}
		num = polyMulLinear(num, xs[m])
		den = den.Mul(xs[j].Sub(xs[m]))
	}
	denInv := den.Inverse()
	for i := range num {
		num[i] = num[i].Mul(denInv)
	}
	return num, nil
}

// polyMulLinear multiplies poly (coefficients, ascending degree) by
// the linear factor (x - root), returning the new coefficient vector.
func polyMulLinear(poly []field.Element, root field.Element) []field.Element {
	out := make([]field.Element, len(poly)+1)
	for i := range out {
		out[i] = field.Zero()
	}
	negRoot := root.Neg()
	for i, c := range poly {
		out[i] = out[i].Add(c.Mul(negRoot))
		out[i+1] = out[i+1].Add(c)
	}
	return out
}

// CheckPolynomialOnPoints implements the "polynomial-on-points check"
// of §4.1: given 2t+1 (x_i, y_i) pairs, interpolate the first t+1 and
// verify the remaining t agree with the interpolant. Used by output
// reconstruction and the tuple verifier's final opening (SPEC_FULL §D,
// open question (a)).
func CheckPolynomialOnPoints(xs, ys []field.Element, degree int) (bool, error) {
	need := degree + 1
	if len(xs) < need || len(xs) != len(ys) {
		return false, fmt.Errorf("sharecodec: need at least %d points, got %d", need, len(xs))
	}
	poly, err := InterpolatePolynomial(xs[:need], ys[:need])
	if err != nil {
		return false, err
	}
	for i := need; i < len(xs); i++ {
		if !poly.Evaluate(xs[i]).Equal(ys[i]) {
			return false, nil
		}
	}
	return true, nil
}
