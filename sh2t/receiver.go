package sh2t

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/pairwise"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// Completion is surfaced once a dealer's Sh2t batch is verified and
// RA-confirmed.
type Completion struct {
	Dealer party.ID
	Batch  uint64
	Shares []field.Element
}

type batchKey struct {
	Dealer party.ID
	Batch  uint64
}

type state struct {
	transcript *parsedTranscript
	packet     *parsedPacket
	verified   bool
	invalid    bool
	raVoted    bool
	decided    bool
	raValue    uint8
	completed  bool
}

// Receiver runs Sh2t's reduced verification (share-commitment
// recomputation only, §4.3) and termination logic for one local party.
type Receiver struct {
	cfg   *config.Config
	keys  *pairwise.Table
	ra    external.RA
	out   chan Completion
	state map[batchKey]*state
}

// NewReceiver builds a Receiver bound to this party's key table and RA
// handle.
func NewReceiver(cfg *config.Config, keys *pairwise.Table, ra external.RA) *Receiver {
	return &Receiver{
		cfg:   cfg,
		keys:  keys,
		ra:    ra,
		out:   make(chan Completion, 64),
		state: make(map[batchKey]*state),
	}
}

// Completions streams (dealer, batch) deliveries once they terminate.
func (r *Receiver) Completions() <-chan Completion { return r.out }

func (r *Receiver) stateFor(dealer party.ID, batch uint64) *state {
	key := batchKey{Dealer: dealer, Batch: batch}
	s, ok := r.state[key]
	if !ok {
		s = &state{}
		r.state[key] = s
	}
	return s
}

func (r *Receiver) keyerFor(dealer party.ID) (*pairwise.StreamKeyer, error) {
	k, err := r.keys.KeyWith(dealer)
	if err != nil {
		return nil, err
	}
	return pairwise.NewStreamKeyer(k), nil
}

func (r *Receiver) degree() int { return 2 * r.cfg.Threshold() }

// OnCTRBCDelivery handles a reliably-broadcast Sh2t transcript.
func (r *Receiver) OnCTRBCDelivery(d external.CTRBCDelivery) error {
	dealer := d.Sender
	batch := d.InstanceID
	s := r.stateFor(dealer, batch)
	if s.transcript != nil {
		return nil
	}
	t, err := decodeTranscript(d.Payload)
	if err != nil {
		return fmt.Errorf("sh2t: party %s transcript from dealer %s: %w", r.cfg.MyID, dealer, err)
	}
	s.transcript = t

	if r.cfg.Basis() != sharecodec.BasisAlgebraic || int(r.cfg.MyID) >= r.degree() {
		return r.tryVerify(dealer, batch)
	}
	keyer, err := r.keyerFor(dealer)
	if err != nil {
		return fmt.Errorf("sh2t: resolving key for dealer %s: %w", dealer, err)
	}
	shares := make([]field.Element, t.K)
	for i := 0; i < t.K; i++ {
		shares[i], err = sharecodec.ReconstructLocalShare(int(r.cfg.MyID), keyer, secretLabel(batch, i), pairwise.TagShare)
		if err != nil {
			return fmt.Errorf("sh2t: reconstructing local share %d: %w", i, err)
		}
	}
	nonceShare, err := sharecodec.ReconstructLocalShare(int(r.cfg.MyID), keyer, nonceLabel(batch), pairwise.TagShare)
	if err != nil {
		return fmt.Errorf("sh2t: reconstructing local nonce share: %w", err)
	}
	s.packet = &parsedPacket{Shares: shares, NonceShare: nonceShare}
	return r.tryVerify(dealer, batch)
}

// OnAVIDDelivery handles a dispersed, pairwise-encrypted share packet.
func (r *Receiver) OnAVIDDelivery(d external.AVIDDelivery) error {
	if d.Payload == nil {
		return nil
	}
	dealer := d.Sender
	batch := d.InstanceID
	s := r.stateFor(dealer, batch)
	if s.packet != nil {
		return nil
	}
	keyer, err := r.keyerFor(dealer)
	if err != nil {
		return fmt.Errorf("sh2t: resolving key for dealer %s: %w", dealer, err)
	}
	plaintext, err := decryptPacket(keyer, batch, d.Payload)
	if err != nil {
		return fmt.Errorf("sh2t: decrypting packet from dealer %s: %w", dealer, err)
	}
	p, err := decodePacket(plaintext)
	if err != nil {
		return fmt.Errorf("sh2t: decoding packet from dealer %s: %w", dealer, err)
	}
	s.packet = p
	return r.tryVerify(dealer, batch)
}

func (r *Receiver) tryVerify(dealer party.ID, batch uint64) error {
	s := r.stateFor(dealer, batch)
	if s.transcript == nil || s.packet == nil || s.verified || s.invalid {
		return nil
	}
	j := int(r.cfg.MyID)
	if j >= len(s.transcript.ShareCommitments) {
		return fmt.Errorf("sh2t: party index %d out of range for dealer %s transcript", j, dealer)
	}
	recomputed := hashutil.ShareCommitment(s.packet.Shares, s.packet.NonceShare)
	if recomputed != s.transcript.ShareCommitments[j] {
		s.invalid = true
		return nil
	}
	s.verified = true
	if !s.raVoted {
		s.raVoted = true
		if err := r.ra.Vote(batch, dealer, 1); err != nil {
			return fmt.Errorf("sh2t: voting RA for dealer %s: %w", dealer, err)
		}
	}
	return r.tryTerminate(dealer, batch)
}

// OnRADecision handles the binary agreement output gating termination.
func (r *Receiver) OnRADecision(d external.RADecision) error {
	s := r.stateFor(d.Dealer, d.Instance)
	s.decided = true
	s.raValue = d.Value
	return r.tryTerminate(d.Dealer, d.Instance)
}

func (r *Receiver) tryTerminate(dealer party.ID, batch uint64) error {
	s := r.stateFor(dealer, batch)
	if s.completed || !s.verified || !s.decided || s.raValue != 1 {
		return nil
	}
	s.completed = true
	r.out <- Completion{Dealer: dealer, Batch: batch, Shares: s.packet.Shares}
	return nil
}
