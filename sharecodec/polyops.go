package sharecodec

import "github.com/akhilsb/velox-mpc/field"

// Add returns p + o, padding the shorter operand with zero
// coefficients (used to assemble the DZK polynomial Q = b + sum r^k p_k,
// §4.2 step 7).
func (p *Polynomial) Add(o *Polynomial) *Polynomial {
	n := len(p.Coeffs)
	if len(o.Coeffs) > n {
		n = len(o.Coeffs)
	}
	out := make([]field.Element, n)
	for i := 0; i < n; i++ {
		var a, b field.Element
		if i < len(p.Coeffs) {
			a = p.Coeffs[i]
		} else {
			a = field.Zero()
		}
		if i < len(o.Coeffs) {
			b = o.Coeffs[i]
		} else {
			b = field.Zero()
		}
		out[i] = a.Add(b)
	}
	return &Polynomial{Coeffs: out}
}

// ScalarMul returns s * p.
func (p *Polynomial) ScalarMul(s field.Element) *Polynomial {
	out := make([]field.Element, len(p.Coeffs))
	for i, c := range p.Coeffs {
		out[i] = c.Mul(s)
	}
	return &Polynomial{Coeffs: out}
}
