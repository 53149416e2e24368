// Package tupleverify implements the Tuple Verifier of §4.6:
// delinearization folds every collected multiplication triple into one
// aggregated (X,Y,Z) batch-check, ex-compress recursively shrinks that
// batch to a single triple, and the final opening either confirms or
// publicly rejects the whole batch with one reveal.
package tupleverify

import "github.com/akhilsb/velox-mpc/field"

// Triple is one completed multiplication result: t-sharings of a, b,
// and the engine-produced c = a*b.
type Triple struct {
	A, B, C field.Element
}

// Delinearize folds a batch of triples plus one fresh random mask
// triple's product (cStar = aStar*bStar, popped from the R-queue and
// multiplied through the engine by the caller) into one aggregated
// linear-form triple (§4.6 "Delinearization"): x_i = α^i·a_i, y_i = b_i,
// z = Σ α^i·c_i + α^(N+1)·c*. A dishonest triple survives this fold
// with probability at most N/|F| in α, negligible for the configured
// field size.
func Delinearize(triples []Triple, alpha, cStar field.Element) (x, y []field.Element, z field.Element) {
	n := len(triples)
	x = make([]field.Element, n)
	y = make([]field.Element, n)
	z = field.Zero()
	power := alpha
	for i, tr := range triples {
		x[i] = power.Mul(tr.A)
		y[i] = tr.B
		z = z.Add(power.Mul(tr.C))
		power = power.Mul(alpha)
	}
	// power is now alpha^(N+1)
	z = z.Add(power.Mul(cStar))
	return x, y, z
}
