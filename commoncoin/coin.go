// Package commoncoin implements the common coin of §4.7: pop one
// share from the Coin-queue, broadcast it tagged by depth, and once
// t+1 shares are in hand, interpolate a degree-t polynomial and
// evaluate it at zero for an unbiased shared random field element.
package commoncoin

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/errs"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

type flipState struct {
	shares map[party.ID]field.Element
	done   bool
	out    chan field.Element
}

// Coin runs one common-coin instance per depth-tag, each independently
// consuming one Coin-queue share (§4.7: "Each depth-tag uses an
// independent popped share").
type Coin struct {
	cfg   *config.Config
	ctrbc external.CTRBC
	queue *queue.FIFO[field.Element]
	state map[uint64]*flipState
}

// New builds a Coin drawing from coinQueue and broadcasting flips over
// ctrbc, one CTRBC instance per depth-tag.
func New(cfg *config.Config, ctrbc external.CTRBC, coinQueue *queue.FIFO[field.Element]) *Coin {
	return &Coin{cfg: cfg, ctrbc: ctrbc, queue: coinQueue, state: make(map[uint64]*flipState)}
}

func (c *Coin) stateFor(depthTag uint64) *flipState {
	s, ok := c.state[depthTag]
	if !ok {
		s = &flipState{shares: make(map[party.ID]field.Element), out: make(chan field.Element, 1)}
		c.state[depthTag] = s
	}
	return s
}

// Flip pops the next Coin-queue share and broadcasts it under
// depthTag. Returns errs.ErrQueueUnderrun if the queue is exhausted.
func (c *Coin) Flip(depthTag uint64) error {
	share, ok := c.queue.Pop()
	if !ok {
		return errs.ErrQueueUnderrun
	}
	payload, err := wire.Marshal(share.Bytes())
	if err != nil {
		return fmt.Errorf("commoncoin: encoding flip for tag %d: %w", depthTag, err)
	}
	return c.ctrbc.Send(depthTag, payload)
}

// Result returns the channel that will carry the reconstructed coin
// value for depthTag, once t+1 shares have arrived.
func (c *Coin) Result(depthTag uint64) <-chan field.Element {
	return c.stateFor(depthTag).out
}

// OnCTRBCDelivery handles one party's broadcast coin share.
func (c *Coin) OnCTRBCDelivery(d external.CTRBCDelivery) error {
	s := c.stateFor(d.InstanceID)
	if s.done {
		return nil
	}
	var raw []byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("commoncoin: decoding flip from %s for tag %d: %w", d.Sender, d.InstanceID, err)
	}
	share, err := field.FromBytes(raw)
	if err != nil {
		return fmt.Errorf("commoncoin: parsing flip from %s for tag %d: %w", d.Sender, d.InstanceID, err)
	}
	s.shares[d.Sender] = share

	threshold := c.cfg.Threshold() + 1
	if len(s.shares) < threshold {
		return nil
	}
	xs := make([]field.Element, 0, len(s.shares))
	ys := make([]field.Element, 0, len(s.shares))
	for id, sh := range s.shares {
		xs = append(xs, field.FromUint64(uint64(id)+1))
		ys = append(ys, sh)
	}
	coin, err := sharecodec.InterpolateAtZero(xs, ys)
	if err != nil {
		return fmt.Errorf("commoncoin: interpolating tag %d: %w", d.InstanceID, err)
	}
	s.done = true
	s.out <- coin
	return nil
}
