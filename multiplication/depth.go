package multiplication

import (
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/queue"
)

// instanceStride reserves a contiguous block of CTRBC instance ids per
// depth-multiplication call: quadratic uses 2 (c-vector, hash), linear
// uses 3 (L1, L2, hash). 4 covers either with room to spare.
const instanceStride = 4

// Engine dispatches one depth's batch of (a,b) multiplications to
// whichever sub-protocol the batch size selects (§4.5: "chosen per call
// by a threshold on batch size").
type Engine struct {
	cfg   *config.Config
	ctrbc external.CTRBC
}

// NewEngine builds a multiplication Engine bound to one CTRBC transport
// shared by every depth's sub-protocol instances (instance ids are
// namespaced by depth so concurrent depths never collide).
func NewEngine(cfg *config.Config, ctrbc external.CTRBC) *Engine {
	return &Engine{cfg: cfg, ctrbc: ctrbc}
}

// baseInstance derives this depth's reserved instance-id range.
func (e *Engine) baseInstance(depth int) uint64 {
	return uint64(depth) * instanceStride
}

// Call is the live sub-protocol instance for one depth's multiplication
// call, exposing whichever CTRBC delivery handlers are relevant for the
// chosen sub-protocol (the unused ones are simply never invoked).
type Call struct {
	Quadratic *Quadratic
	Linear    *Linear
}

// Result streams this call's next-layer t-sharings, regardless of which
// sub-protocol was selected.
func (c *Call) Result() <-chan []field.Element {
	if c.Quadratic != nil {
		return c.Quadratic.Result()
	}
	return c.Linear.Result()
}

// Start begins the selected sub-protocol for this batch.
func (c *Call) Start(a, b []field.Element, rQueue, oQueue *queue.FIFO[field.Element]) error {
	if c.Quadratic != nil {
		return c.Quadratic.Start(a, b, rQueue, oQueue)
	}
	return c.Linear.Start(a, b, rQueue, oQueue)
}

// Dispatch routes one CTRBC delivery to the matching sub-protocol
// handler for this call's instance range.
func (c *Call) Dispatch(d external.CTRBCDelivery) error {
	if c.Quadratic != nil {
		switch d.InstanceID {
		case c.Quadratic.instance:
			return c.Quadratic.OnCVecDelivery(d)
		case c.Quadratic.instance + 1:
			return c.Quadratic.OnHashDelivery(d)
		}
		return nil
	}
	switch d.InstanceID {
	case c.Linear.instance:
		return c.Linear.OnL1Delivery(d)
	case c.Linear.instance + 1:
		return c.Linear.OnL2Delivery(d)
	case c.Linear.instance + 2:
		return c.Linear.OnHashDelivery(d)
	}
	return nil
}

// NewCall selects a sub-protocol for a depth's batch of size n against
// the configured switch threshold and allocates its instance range.
func (e *Engine) NewCall(depth, n int) *Call {
	base := e.baseInstance(depth)
	if n <= e.cfg.MultiplicationSwitchThreshold {
		return &Call{Quadratic: NewQuadratic(e.cfg, e.ctrbc, e.ctrbc, base)}
	}
	return &Call{Linear: NewLinear(e.cfg, e.ctrbc, e.ctrbc, e.ctrbc, base)}
}
