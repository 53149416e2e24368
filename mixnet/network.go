// Package mixnet implements the opt-in butterfly-mix circuit variant
// (SPEC_FULL §C.2, §9 open question (b)): a log2(k)-depth oblivious
// switching network over k wires, each layer's swap decisions driven by
// one t-shared random bit (0 or 1) per wire-pair from a caller-filled
// bit queue (bits of the kind preprocessing.RandBit derives). It
// depends on the same Queues and
// Multiplication Engine as the default circuit driver but is never
// wired into it (grounded on
// original_source/protocol/mpc/src/protocol/online_phase/mix_circuit_state.rs's
// wire_pairs/rand_bit_sharings state, adapted here to this codebase's
// depth-batched multiplication engine instead of the original's
// message-driven state machine).
package mixnet

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/multiplication"
	"github.com/akhilsb/velox-mpc/queue"
)

// Outcome is the Network's terminal result: the permuted wire vector.
type Outcome struct {
	Wires []field.Element
}

// Network runs one butterfly-mix instance over k wires, k a power of
// two. Layer l pairs wire i with wire i^(1<<l) for i < i^(1<<l); each
// pair (x,y) is obliviously swapped by one t-shared random bit b via
// out_x = x + b*(y-x), out_y = y - b*(y-x), costing exactly one
// multiplication per pair per layer.
type Network struct {
	cfg       *config.Config
	engine    *multiplication.Engine
	rQueue    *queue.FIFO[field.Element]
	oQueue    *queue.FIFO[field.Element]
	bitQueue  *queue.FIFO[field.Element]
	depthBase int

	k         int
	numLayers int

	wires []field.Element
	layer int
	pairs [][2]int
	bits  []field.Element

	current *multiplication.Call
	out     chan Outcome
}

// New builds a Network for k wires (k must be a power of two). bitQueue
// supplies one random-bit share per wire-pair per layer; the caller
// fills it (nothing in the preprocessing package populates it).
func New(cfg *config.Config, engine *multiplication.Engine, rQueue, oQueue, bitQueue *queue.FIFO[field.Element], depthBase, k int) (*Network, error) {
	if k <= 0 || k&(k-1) != 0 {
		return nil, fmt.Errorf("mixnet: wire count %d must be a positive power of two", k)
	}
	numLayers := 0
	for 1<<numLayers < k {
		numLayers++
	}
	return &Network{
		cfg: cfg, engine: engine, rQueue: rQueue, oQueue: oQueue, bitQueue: bitQueue,
		depthBase: depthBase, k: k, numLayers: numLayers,
		wires: make([]field.Element, k), out: make(chan Outcome, 1),
	}, nil
}

// Result streams the terminal permuted wire vector.
func (n *Network) Result() <-chan Outcome { return n.out }

// Start loads the initial wire values and begins layer 0.
func (n *Network) Start(wires []field.Element) error {
	if len(wires) != n.k {
		return fmt.Errorf("mixnet: expected %d wires, got %d", n.k, len(wires))
	}
	copy(n.wires, wires)
	return n.beginLayer(0)
}

func (n *Network) beginLayer(idx int) error {
	n.layer = idx
	if idx >= n.numLayers {
		n.out <- Outcome{Wires: n.wires}
		return nil
	}
	dist := 1 << idx
	var pairs [][2]int
	for i := 0; i < n.k; i++ {
		j := i ^ dist
		if i < j {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	bits, ok := n.bitQueue.PopN(len(pairs))
	if !ok {
		return fmt.Errorf("mixnet: RandBit-queue underrun at layer %d (need %d)", idx, len(pairs))
	}
	diffs := make([]field.Element, len(pairs))
	for i, p := range pairs {
		diffs[i] = n.wires[p[1]].Sub(n.wires[p[0]])
	}
	call := n.engine.NewCall(n.depthBase+idx, len(pairs))
	if err := call.Start(bits, diffs, n.rQueue, n.oQueue); err != nil {
		return fmt.Errorf("mixnet: starting layer %d swap: %w", idx, err)
	}
	n.current = call
	n.pairs = pairs
	n.bits = bits
	return nil
}

// Dispatch routes one CTRBC delivery to the active layer's
// multiplication call and advances once it resolves.
func (n *Network) Dispatch(e external.CTRBCDelivery) error {
	if n.current == nil {
		return nil
	}
	if err := n.current.Dispatch(e); err != nil {
		return err
	}
	select {
	case res := <-n.current.Result():
		layerIdx := n.layer
		for i, p := range n.pairs {
			swap := res[i]
			x, y := n.wires[p[0]], n.wires[p[1]]
			n.wires[p[0]] = x.Add(swap)
			n.wires[p[1]] = y.Sub(swap)
		}
		n.current = nil
		n.pairs = nil
		n.bits = nil
		return n.beginLayer(layerIdx + 1)
	default:
		return nil
	}
}
