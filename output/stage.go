// Package output implements the Output Stage of §4.8: mask every
// output wire's t-sharing, publicly reconstruct the masked vector once
// n-t parties broadcast matching shares, agree on a set of "finishers"
// via one more ACS round, and reveal + subtract the true masking value
// through the AVSS oracle (SPEC_FULL §D, open question (d)).
package output

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// Outcome is the Output Stage's terminal result: either the true
// output wires, or Aborted if t+1 parties broadcast an abort.
type Outcome struct {
	Aborted bool
	Outputs []field.Element
}

// Stage runs one circuit's output reveal.
type Stage struct {
	cfg              *config.Config
	maskedBus        external.CTRBC
	successBus       external.CTRBC
	acs              external.ACS
	avss             external.AVSS
	epoch            uint64
	maskAVSSInstance uint64

	maskShares []field.Element
	n          int

	maskedVectors map[party.ID][]field.Element
	maskedDone    bool
	maskedPublic  []field.Element

	successSeen map[party.ID][]field.Element
	abortVotes  map[party.ID]bool

	acsDone   bool
	finishers party.Set
	opened    map[party.ID][]field.Element
	finalized bool

	out chan Outcome
}

// New builds one Output Stage instance bound to two CTRBC transports
// (masked-vector broadcast and success/abort flag broadcast, both
// under instance id epoch), one ACS instance (epoch), and the AVSS
// oracle used to reveal output masks.
func New(cfg *config.Config, maskedBus, successBus external.CTRBC, acs external.ACS, avss external.AVSS, epoch, maskAVSSInstance uint64) *Stage {
	return &Stage{
		cfg:              cfg,
		maskedBus:        maskedBus,
		successBus:       successBus,
		acs:              acs,
		avss:             avss,
		epoch:            epoch,
		maskAVSSInstance: maskAVSSInstance,
		maskedVectors:    make(map[party.ID][]field.Element),
		successSeen:       make(map[party.ID][]field.Element),
		abortVotes:        make(map[party.ID]bool),
		opened:            make(map[party.ID][]field.Element),
		out:               make(chan Outcome, 1),
	}
}

// Result streams the terminal outcome.
func (s *Stage) Result() <-chan Outcome { return s.out }

// Start masks this party's output-wire shares with one OutputMask-queue
// share per wire and broadcasts the result (§4.8 step 1).
func (s *Stage) Start(outputs []field.Element, maskQueue *queue.FIFO[field.Element]) error {
	s.n = len(outputs)
	masks, ok := maskQueue.PopN(s.n)
	if !ok {
		return fmt.Errorf("output: OutputMask-queue underrun (need %d)", s.n)
	}
	s.maskShares = masks
	masked := make([]field.Element, s.n)
	for i := range masked {
		masked[i] = outputs[i].Add(masks[i])
	}
	payload, err := wire.Marshal(elementBytes(masked))
	if err != nil {
		return fmt.Errorf("output: encoding masked vector: %w", err)
	}
	return s.maskedBus.Send(s.epoch, payload)
}

// OnMaskedDelivery collects per-party masked vectors and fixes the
// publicly reconstructed masked outputs once n-t pass the
// polynomial-on-points check (§4.1, §4.8 step 2).
func (s *Stage) OnMaskedDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != s.epoch || s.maskedDone {
		return nil
	}
	vec, err := decodeElements(d.Payload)
	if err != nil {
		return fmt.Errorf("output: decoding masked vector from %s: %w", d.Sender, err)
	}
	s.maskedVectors[d.Sender] = vec

	need := s.cfg.NumNodes - s.cfg.Threshold()
	if len(s.maskedVectors) < need {
		return nil
	}
	ids := make([]party.ID, 0, len(s.maskedVectors))
	for id := range s.maskedVectors {
		ids = append(ids, id)
	}
	ids = party.NewSet(ids...).Slice()
	ids = ids[:need]

	xs := make([]field.Element, need)
	for i, id := range ids {
		xs[i] = field.FromUint64(uint64(id) + 1)
	}
	width := len(vec)
	t := s.cfg.Threshold()
	public := make([]field.Element, width)
	for w := 0; w < width; w++ {
		ys := make([]field.Element, need)
		for i, id := range ids {
			ys[i] = s.maskedVectors[id][w]
		}
		ok, err := sharecodec.CheckPolynomialOnPoints(xs, ys, t)
		if err != nil {
			return fmt.Errorf("output: checking masked position %d: %w", w, err)
		}
		if !ok {
			// Disagreement on this batch of n-t broadcasts; wait for more
			// deliveries rather than aborting immediately -- a slow honest
			// party may still push the count past n-t with a consistent set.
			return nil
		}
		v, err := sharecodec.InterpolateAtZero(xs[:t+1], ys[:t+1])
		if err != nil {
			return err
		}
		public[w] = v
	}
	s.maskedDone = true
	s.maskedPublic = public

	payload, err := wire.Marshal(elementBytes(public))
	if err != nil {
		return fmt.Errorf("output: encoding success broadcast: %w", err)
	}
	if err := s.successBus.Send(s.epoch, payload); err != nil {
		return err
	}
	if err := s.acs.Ready(s.epoch, s.cfg.MyID); err != nil {
		return err
	}
	return s.maybeFinalize()
}

// OnSuccessDelivery records a party's success broadcast and submits it
// as agreement-ready once observed (§4.8 step 3's ACS round).
func (s *Stage) OnSuccessDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != s.epoch || s.acsDone {
		return nil
	}
	vec, err := decodeElements(d.Payload)
	if err != nil {
		return fmt.Errorf("output: decoding success vector from %s: %w", d.Sender, err)
	}
	s.successSeen[d.Sender] = vec
	return s.acs.Ready(s.epoch, d.Sender)
}

// OnAbortVote records an out-of-band abort broadcast; once t+1 parties
// vote abort, the stage terminates with Outcome.Aborted (§4.8 abort
// path). The transport layer is responsible for routing abort votes
// here distinctly from the success/masked CTRBC instances.
func (s *Stage) OnAbortVote(voter party.ID) {
	if s.acsDone {
		return
	}
	s.abortVotes[voter] = true
	if len(s.abortVotes) >= s.cfg.Threshold()+1 {
		s.acsDone = true
		s.out <- Outcome{Aborted: true}
	}
}

// OnACSOutput fixes the agreed set of finishers and requests the AVSS
// oracle reveal each finisher's output-mask pre-image.
func (s *Stage) OnACSOutput(o external.ACSOutput) error {
	if o.Instance != s.epoch || s.acsDone {
		return nil
	}
	s.acsDone = true
	s.finishers = o.Set
	for _, f := range o.Set.Slice() {
		if err := s.avss.OpenFor(s.maskAVSSInstance, f); err != nil {
			return fmt.Errorf("output: requesting mask reveal from %s: %w", f, err)
		}
	}
	return s.maybeFinalize()
}

// OnAVSSOpen accumulates one finisher's revealed output-mask batch. The
// CTRBC masked-vector round and the AVSS open round are independent
// channels with no ordering guarantee between them, so an open can
// arrive before this party's own masked reconstruction or before ACS
// has fixed the finisher set; it is buffered regardless and finalized
// once every dependency is satisfied (maybeFinalize).
func (s *Stage) OnAVSSOpen(e external.AVSSOpenEvent) error {
	vals, err := shareTripleToElements(e.ShareTrip)
	if err != nil {
		return fmt.Errorf("output: decoding mask reveal from %s: %w", e.Origin, err)
	}
	s.opened[e.Origin] = vals
	return s.maybeFinalize()
}

// maybeFinalize subtracts the total revealed mask from the publicly
// reconstructed masked outputs once the masked vector, the ACS-agreed
// finisher set, and every finisher's mask reveal are all in hand
// (§4.8 "reveal the output masks ... and subtract to recover true
// outputs").
func (s *Stage) maybeFinalize() error {
	if s.finalized || !s.maskedDone || !s.acsDone {
		return nil
	}
	for _, f := range s.finishers.Slice() {
		if _, ok := s.opened[f]; !ok {
			return nil
		}
	}
	totalMask := make([]field.Element, s.n)
	for i := range totalMask {
		totalMask[i] = field.Zero()
	}
	for _, f := range s.finishers.Slice() {
		vals := s.opened[f]
		for i := 0; i < s.n && i < len(vals); i++ {
			totalMask[i] = totalMask[i].Add(vals[i])
		}
	}
	outputs := make([]field.Element, s.n)
	for i := range outputs {
		outputs[i] = s.maskedPublic[i].Sub(totalMask[i])
	}
	s.finalized = true
	s.out <- Outcome{Outputs: outputs}
	return nil
}

func elementBytes(es []field.Element) [][]byte {
	out := make([][]byte, len(es))
	for i, e := range es {
		out[i] = e.Bytes()
	}
	return out
}

func decodeElements(payload []byte) ([]field.Element, error) {
	var raw [][]byte
	if err := wire.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	out := make([]field.Element, len(raw))
	for i, b := range raw {
		e, err := field.FromBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func shareTripleToElements(st external.ShareTriple) ([]field.Element, error) {
	return decodeElements(st)
}
