package circuit

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/multiplication"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/tupleverify"
)

// Outcome is the Driver's terminal result: the full wire-value vector
// (each still a t-sharing) and every multiplication triple recorded
// along the way, ready for the tuple verifier.
type Outcome struct {
	Wires   []field.Element
	Outputs []field.Element
	Triples []tupleverify.Triple
}

// Driver evaluates one Circuit depth-by-depth: local gates run
// in-place, each layer's multiplication gates are dispatched to the
// multiplication engine as one batch, and every (a,b,c) triple produced
// is recorded for verification (SPEC_FULL §D open question (c): depth
// <= max_depth is recorded, inclusive of the output layer).
type Driver struct {
	cfg     *config.Config
	circuit *Circuit
	engine  *multiplication.Engine
	rQueue  *queue.FIFO[field.Element]
	oQueue  *queue.FIFO[field.Element]

	depthBase int // per-epoch offset added to the layer index before calling the engine

	wires   []field.Element
	layer   int
	current *multiplication.Call
	muls    []MulGate
	triples []tupleverify.Triple

	out chan Outcome
}

// New builds a Driver for one circuit epoch. depthBase should be
// distinct per concurrently-running circuit instance (e.g.
// epoch*(cfg.MaxDepth+1)) so their multiplication engine instance ids
// never collide.
func New(cfg *config.Config, c *Circuit, engine *multiplication.Engine, rQueue, oQueue *queue.FIFO[field.Element], depthBase int) *Driver {
	return &Driver{
		cfg:       cfg,
		circuit:   c,
		engine:    engine,
		rQueue:    rQueue,
		oQueue:    oQueue,
		depthBase: depthBase,
		wires:     make([]field.Element, c.NumWires),
		out:       make(chan Outcome, 1),
	}
}

// Start populates the input wires and begins layer 0.
func (d *Driver) Start(inputs map[int]field.Element) error {
	for _, w := range d.circuit.Inputs {
		v, ok := inputs[w]
		if !ok {
			return fmt.Errorf("circuit: missing input share for wire %d", w)
		}
		d.wires[w] = v
	}
	return d.beginLayer(0)
}

// Result streams the circuit's terminal outcome.
func (d *Driver) Result() <-chan Outcome { return d.out }

func (d *Driver) beginLayer(idx int) error {
	d.layer = idx
	if idx >= len(d.circuit.Layers) {
		evalLocal(d.wires, d.circuit.Final)
		d.finish()
		return nil
	}
	layer := d.circuit.Layers[idx]
	evalLocal(d.wires, layer.Local)
	if len(layer.Muls) == 0 {
		return d.beginLayer(idx + 1)
	}
	a := make([]field.Element, len(layer.Muls))
	b := make([]field.Element, len(layer.Muls))
	for i, g := range layer.Muls {
		a[i] = d.wires[g.A]
		b[i] = d.wires[g.B]
	}
	call := d.engine.NewCall(d.depthBase+idx, len(layer.Muls))
	if err := call.Start(a, b, d.rQueue, d.oQueue); err != nil {
		return fmt.Errorf("circuit: starting layer %d multiplication: %w", idx, err)
	}
	d.current = call
	d.muls = layer.Muls
	return nil
}

func (d *Driver) finish() {
	outputs := make([]field.Element, len(d.circuit.Outputs))
	for i, w := range d.circuit.Outputs {
		outputs[i] = d.wires[w]
	}
	d.out <- Outcome{Wires: d.wires, Outputs: outputs, Triples: d.triples}
}

// Dispatch routes one CTRBC delivery to the active layer's
// multiplication call and advances to the next layer once it resolves.
func (d *Driver) Dispatch(e external.CTRBCDelivery) error {
	if d.current == nil {
		return nil
	}
	if err := d.current.Dispatch(e); err != nil {
		return err
	}
	select {
	case res := <-d.current.Result():
		layerIdx := d.layer
		for i, g := range d.muls {
			d.wires[g.Out] = res[i]
			if layerIdx <= d.cfg.MaxDepth {
				d.triples = append(d.triples, tupleverify.Triple{A: d.wires[g.A], B: d.wires[g.B], C: res[i]})
			}
		}
		d.current = nil
		d.muls = nil
		return d.beginLayer(layerIdx + 1)
	default:
		return nil
	}
}
