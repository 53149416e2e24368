package multiplication

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/wire"
)

// Weak runs the weak-multiplication variant used internally by
// ex-compress (SPEC_FULL §C.3, grounded on weak_mult.rs): it skips the
// hash-agreement round the quadratic protocol needs because both
// multiplicands here are extension evaluations deterministically
// derived from already-agreed values, so a disagreement on the
// reconstructed product is detectable by the final opening check
// anyway and does not need its own round.
type Weak struct {
	cfg      *config.Config
	cVec     external.CTRBC
	instance uint64

	rShares   []field.Element
	n         int
	cVectors  map[party.ID][]field.Element
	done      bool
	out       chan []field.Element
}

// NewWeak builds one weak-multiplication instance bound to a single
// CTRBC instance id (no second instance is needed since there is no
// hash-agreement round).
func NewWeak(cfg *config.Config, cVec external.CTRBC, instance uint64) *Weak {
	return &Weak{
		cfg:      cfg,
		cVec:     cVec,
		instance: instance,
		cVectors: make(map[party.ID][]field.Element),
		out:      make(chan []field.Element, 1),
	}
}

// Result streams the batch's next-layer t-sharings once n-t c-vectors
// have been reconstructed.
func (w *Weak) Result() <-chan []field.Element { return w.out }

// Start computes and broadcasts this party's share of a_i*b_i + r_i
// (no re-randomizing o_i term: both operands are already fresh
// extension values, not reused elsewhere, so no re-randomization is
// needed before the single reconstruction).
func (w *Weak) Start(a, b []field.Element, rQueue *queue.FIFO[field.Element]) error {
	if len(a) != len(b) {
		return fmt.Errorf("multiplication: weak batch size mismatch (%d a, %d b)", len(a), len(b))
	}
	w.n = len(a)
	rShares, ok := rQueue.PopN(w.n)
	if !ok {
		return fmt.Errorf("multiplication: R-queue underrun (need %d)", w.n)
	}
	w.rShares = rShares

	c := make([]field.Element, w.n)
	for i := range c {
		c[i] = a[i].Mul(b[i]).Add(rShares[i])
	}
	payload, err := wire.Marshal(elementsToBytes(c))
	if err != nil {
		return fmt.Errorf("multiplication: encoding weak c-vector: %w", err)
	}
	return w.cVec.Send(w.instance, payload)
}

// OnCVecDelivery collects broadcast c-vectors, resolving directly to
// the next-layer sharing (ĉ_i − r_i) once n-t have arrived.
func (w *Weak) OnCVecDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != w.instance || w.done {
		return nil
	}
	var raw [][]byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("multiplication: decoding weak c-vector from %s: %w", d.Sender, err)
	}
	vec, err := bytesToElements(raw)
	if err != nil {
		return fmt.Errorf("multiplication: parsing weak c-vector from %s: %w", d.Sender, err)
	}
	w.cVectors[d.Sender] = vec

	need := quorumNeed(w.cfg)
	if len(w.cVectors) < need {
		return nil
	}
	recon, err := reconstructPositions(w.cVectors, need)
	if err != nil {
		return fmt.Errorf("multiplication: weak reconstruction: %w", err)
	}
	w.done = true
	next := make([]field.Element, w.n)
	for i := range next {
		next[i] = recon[i].Sub(w.rShares[i])
	}
	w.out <- next
	return nil
}
