package sharecodec

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/field"
)

// Roots computes the n-th roots of unity sequence used by the FFT
// evaluation basis (§3, §4.1). n must be a power of two dividing p-1;
// the process-wide generator is fixed at init from config so every
// party derives an identical sequence (§3: "once chosen, all sharings
// in an instance use it").
func Roots(n int, generator field.Element) ([]field.Element, error) {
	if n <= 0 || (n&(n-1)) != 0 {
		return nil, fmt.Errorf("sharecodec: FFT basis requires a power-of-two n, got %d", n)
	}
	// generator is assumed to be a primitive n-th root of unity,
	// supplied by configuration (derived once from the field's
	// generator raised to (p-1)/n during process init).
	roots := make([]field.Element, n)
	cur := field.One()
	for i := 0; i < n; i++ {
		roots[i] = cur
		cur = cur.Mul(generator)
	}
	return roots, nil
}

// EvaluateNTT evaluates a polynomial (padded with zero coefficients to
// length n) at all n roots of unity via the iterative radix-2
// Cooley-Tukey NTT, the FFT engine named as an external collaborator in
// §1 but whose evaluation semantics the Share Codec must still agree
// on with the dealer. n must be a power of two.
func EvaluateNTT(poly *Polynomial, roots []field.Element) ([]field.Element, error) {
	n := len(roots)
	if n == 0 || (n&(n-1)) != 0 {
		return nil, fmt.Errorf("sharecodec: NTT requires a power-of-two length, got %d", n)
	}
	a := make([]field.Element, n)
	for i := range a {
		if i < len(poly.Coeffs) {
			a[i] = poly.Coeffs[i]
		} else {
			a[i] = field.Zero()
		}
	}
	bitReverse(a)
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		// root of unity for this stage: roots[n/size] generates a
		// size-th root when roots holds the full n-th root sequence.
		stageRoot := roots[n/size]
		for start := 0; start < n; start += size {
			w := field.One()
			for i := 0; i < half; i++ {
				u := a[start+i]
				v := a[start+i+half].Mul(w)
				a[start+i] = u.Add(v)
				a[start+i+half] = u.Sub(v)
				w = w.Mul(stageRoot)
			}
		}
	}
	return a, nil
}

func bitReverse(a []field.Element) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}
