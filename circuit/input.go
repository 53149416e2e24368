package circuit

import (
	"fmt"
	"io"

	"github.com/akhilsb/velox-mpc/acss"
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
)

// inputInstanceBit marks the ACSS-AB batch id namespace reserved for
// input-sharing, kept disjoint from the preprocessing orchestrator's
// `epoch<<32 | batch` dealing ids by flipping the top bit (SPEC_FULL
// §C.4: "ACSS-AB dealing restricted to a single secret per input wire,
// run once per party at circuit start").
const inputInstanceBit = uint64(1) << 63

func inputBatchID(epoch uint64) uint64 {
	return inputInstanceBit | epoch
}

// Sharer runs the input-sharing phase: every party deals its own
// private input wires as one ACSS-AB batch, gated into the same
// per-dealer completion bitmap the preprocessing orchestrator tracks.
type Sharer struct {
	cfg   *config.Config
	epoch uint64
}

// NewSharer builds a Sharer for one circuit epoch.
func NewSharer(cfg *config.Config, epoch uint64) *Sharer {
	return &Sharer{cfg: cfg, epoch: epoch}
}

// DealOwnInputs shares this party's own private input values (one
// secret per wire this party owns) via ACSS-AB.
func (s *Sharer) DealOwnInputs(dealer *acss.Dealer, inputs []field.Element, rng io.Reader) error {
	if len(inputs) == 0 {
		return nil
	}
	if err := dealer.Deal(inputBatchID(s.epoch), inputs, rng); err != nil {
		return fmt.Errorf("circuit: dealing input-sharing batch: %w", err)
	}
	return nil
}

// completionGate observes ACSS-AB completions and reports the ones
// belonging to this epoch's input-sharing instance.
type completionGate struct {
	epoch uint64
}

// matches reports whether an acss.Completion belongs to this epoch's
// input-sharing batch.
func (g completionGate) matches(c acss.Completion) bool {
	return c.Batch == inputBatchID(g.epoch)
}

// InputRegistry collects every dealer's input-wire shares as they
// arrive, keyed by dealer id, for the circuit driver to wire into
// initial wire values once all participating dealers have completed.
type InputRegistry struct {
	gate    completionGate
	shares  map[party.ID][]field.Element
	forward func(party.ID) error
}

// NewInputRegistry builds a registry that also forwards each
// completion into a preprocessing orchestrator's gating bitmap via
// onComplete (typically (*preprocessing.Orchestrator).OnInputCompletion).
func NewInputRegistry(epoch uint64, onComplete func(party.ID) error) *InputRegistry {
	return &InputRegistry{
		gate:    completionGate{epoch: epoch},
		shares:  make(map[party.ID][]field.Element),
		forward: onComplete,
	}
}

// OnACSSCompletion records one dealer's input-sharing batch.
func (r *InputRegistry) OnACSSCompletion(c acss.Completion) error {
	if !r.gate.matches(c) {
		return nil
	}
	r.shares[c.Dealer] = c.Shares
	if r.forward != nil {
		return r.forward(c.Dealer)
	}
	return nil
}

// SharesFor returns the recorded input-wire shares dealt by dealer, if
// its input-sharing batch has completed.
func (r *InputRegistry) SharesFor(dealer party.ID) ([]field.Element, bool) {
	s, ok := r.shares[dealer]
	return s, ok
}
