// Package circuit implements the Circuit Driver of §2/§4.5's data
// flow: it feeds a layered arithmetic circuit's multiplication gates
// to the multiplication engine depth-by-depth, evaluates addition and
// scalar-multiplication gates locally (share-linear, no network round),
// and records every multiplication triple for the tuple verifier.
package circuit

import "github.com/akhilsb/velox-mpc/field"

// LocalKind names a no-network, share-linear gate.
type LocalKind int

const (
	// Add computes wires[Out] = wires[A] + wires[B].
	Add LocalKind = iota
	// Sub computes wires[Out] = wires[A] - wires[B].
	Sub
	// ScalarMul computes wires[Out] = Scalar * wires[A] (B unused).
	ScalarMul
	// Const sets wires[Out] = Scalar (A, B unused); used for public
	// constants folded into the circuit (e.g. addition of a known value).
	Const
)

// LocalGate is one share-linear gate, evaluated without any network
// round since Shamir sharings are additively homomorphic and a known
// scalar commutes with interpolation.
type LocalGate struct {
	Kind   LocalKind
	Out    int
	A, B   int
	Scalar field.Element
}

// MulGate is one multiplication gate at a given depth: wires[Out] will
// become a fresh t-sharing of wires[A] * wires[B] once the depth's
// multiplication call resolves.
type MulGate struct {
	Out  int
	A, B int
}

// Layer is one multiplicative depth: first its Local gates run against
// wires already available from prior layers, then its Muls dispatch to
// the multiplication engine as one batch.
type Layer struct {
	Local []LocalGate
	Muls  []MulGate
}

// Circuit is a layered arithmetic circuit (§3 "MultiplicationDepthState"
// assumes exactly this layering): NumWires fixes the wire-value array
// size, Inputs names which wires are populated directly from
// input-sharing before layer 0 runs, Layers are evaluated in order, and
// Final holds any trailing local gates (e.g. a public linear
// combination) evaluated after the last layer but before Outputs are
// read.
type Circuit struct {
	NumWires int
	Inputs   []int
	Layers   []Layer
	Final    []LocalGate
	Outputs  []int
}

// MaxDepth returns the number of multiplicative layers, matching the
// configured max_depth this circuit was built against.
func (c *Circuit) MaxDepth() int { return len(c.Layers) }

func evalLocal(wires []field.Element, gates []LocalGate) {
	for _, g := range gates {
		switch g.Kind {
		case Add:
			wires[g.Out] = wires[g.A].Add(wires[g.B])
		case Sub:
			wires[g.Out] = wires[g.A].Sub(wires[g.B])
		case ScalarMul:
			wires[g.Out] = g.Scalar.Mul(wires[g.A])
		case Const:
			wires[g.Out] = g.Scalar
		}
	}
}
