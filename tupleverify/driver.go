package tupleverify

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/queue"
)

// roundInstanceStride bounds how many cross-multiplication CTRBC
// instances a single fold round can use (k*(k-1), generously capped)
// before the next round's instance range begins.
const roundInstanceStride = 64

// Driver chains ex-compress Rounds until the batch reaches length 1,
// then hands off to Open for the final public check (§4.6 steps 2-6).
type Driver struct {
	cfg      *config.Config
	ctrbc    external.CTRBC
	rQueue   *queue.FIFO[field.Element]
	k        int
	base     uint64
	round    int
	current  *Round
	coinFn   func(round int) (field.Element, error)
	finalOut chan RoundResult
}

// NewDriver starts ex-compress on an already-delinearized batch
// (x, y, z from Delinearize). coinFn supplies this round's β from the
// common coin, keyed by round index so distinct rounds never reuse a
// coin instance.
func NewDriver(cfg *config.Config, ctrbc external.CTRBC, rQueue *queue.FIFO[field.Element], base uint64, x, y []field.Element, z field.Element, coinFn func(round int) (field.Element, error)) (*Driver, error) {
	d := &Driver{
		cfg:      cfg,
		ctrbc:    ctrbc,
		rQueue:   rQueue,
		k:        cfg.CompressionFactor,
		base:     base,
		coinFn:   coinFn,
		finalOut: make(chan RoundResult, 1),
	}
	if err := d.startRound(x, y, z); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) startRound(x, y []field.Element, z field.Element) error {
	if len(x) <= 1 {
		d.finalOut <- RoundResult{X: x, Y: y, Z: z}
		return nil
	}
	coin, err := d.coinFn(d.round)
	if err != nil {
		return fmt.Errorf("tupleverify: flipping fold coin for round %d: %w", d.round, err)
	}
	r, err := NewRound(d.cfg, d.ctrbc, d.base+uint64(d.round)*roundInstanceStride, d.k, x, y, z, coin)
	if err != nil {
		return fmt.Errorf("tupleverify: building fold round %d: %w", d.round, err)
	}
	if err := r.Start(d.rQueue); err != nil {
		return fmt.Errorf("tupleverify: starting fold round %d: %w", d.round, err)
	}
	d.current = r
	return nil
}

// Final streams the single-element (x_final, y_final, z_final) batch
// once every fold round has completed.
func (d *Driver) Final() <-chan RoundResult { return d.finalOut }

// Dispatch routes one CTRBC delivery to the active round and advances
// to the next round (or to completion) when it resolves.
func (d *Driver) Dispatch(e external.CTRBCDelivery) error {
	if d.current == nil {
		return nil
	}
	if err := d.current.Dispatch(e); err != nil {
		return err
	}
	select {
	case res := <-d.current.Result():
		d.round++
		d.current = nil
		return d.startRound(res.X, res.Y, res.Z)
	default:
		return nil
	}
}
