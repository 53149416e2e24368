package tupleverify

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// finalShare is one party's broadcast share of the recursion's single
// surviving triple (SPEC_FULL §D, open question (a)).
type finalShare struct {
	X, Y, Z field.Element
}

// OpenResult is the outcome of the final single-triple opening: either
// the batch is accepted (all collected triples were consistent) or it
// is not, in which case the caller must suppress the circuit's output
// (§4.6 "Failure semantics").
type OpenResult struct {
	Accepted bool
}

// Open runs §4.6 step 6: every party broadcasts its own share of
// (x_final, y_final, z_final); once 2t+1 shares are in hand, the first
// t+1 fix a degree-t interpolant for each of x, y, z and the remaining
// t must agree with it (the chosen convention for Open Question (a)).
// Acceptance additionally requires the interpolated secrets to satisfy
// z_final = x_final * y_final.
type Open struct {
	cfg      *config.Config
	ctrbc    external.CTRBC
	instance uint64

	mine  finalShare
	shares map[party.ID]finalShare
	done  bool
	out   chan OpenResult
}

// NewOpen builds the final opening for this party's own share of the
// fully-folded triple.
func NewOpen(cfg *config.Config, ctrbc external.CTRBC, instance uint64, mine finalShare) *Open {
	return &Open{
		cfg:      cfg,
		ctrbc:    ctrbc,
		instance: instance,
		mine:     mine,
		shares:   make(map[party.ID]finalShare),
		out:      make(chan OpenResult, 1),
	}
}

// Start broadcasts this party's own final share.
func (o *Open) Start() error {
	payload, err := wire.Marshal([][]byte{o.mine.X.Bytes(), o.mine.Y.Bytes(), o.mine.Z.Bytes()})
	if err != nil {
		return fmt.Errorf("tupleverify: encoding final opening share: %w", err)
	}
	return o.ctrbc.Send(o.instance, payload)
}

// Result streams the accept/reject outcome once 2t+1 shares are in.
func (o *Open) Result() <-chan OpenResult { return o.out }

// OnCTRBCDelivery collects one party's final-triple share.
func (o *Open) OnCTRBCDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != o.instance || o.done {
		return nil
	}
	var raw [][]byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("tupleverify: decoding final share from %s: %w", d.Sender, err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("tupleverify: final share from %s has %d fields, want 3", d.Sender, len(raw))
	}
	x, err := field.FromBytes(raw[0])
	if err != nil {
		return err
	}
	y, err := field.FromBytes(raw[1])
	if err != nil {
		return err
	}
	z, err := field.FromBytes(raw[2])
	if err != nil {
		return err
	}
	o.shares[d.Sender] = finalShare{X: x, Y: y, Z: z}

	need := 2*o.cfg.Threshold() + 1
	if len(o.shares) < need {
		return nil
	}
	ids := make([]party.ID, 0, len(o.shares))
	for id := range o.shares {
		ids = append(ids, id)
	}
	ids = party.NewSet(ids...).Slice()
	ids = ids[:need]

	xs := make([]field.Element, need)
	xVals := make([]field.Element, need)
	yVals := make([]field.Element, need)
	zVals := make([]field.Element, need)
	for i, id := range ids {
		xs[i] = field.FromUint64(uint64(id) + 1)
		s := o.shares[id]
		xVals[i] = s.X
		yVals[i] = s.Y
		zVals[i] = s.Z
	}

	t := o.cfg.Threshold()
	o.done = true
	okX, err := sharecodec.CheckPolynomialOnPoints(xs, xVals, t)
	if err != nil {
		return fmt.Errorf("tupleverify: checking x_final points: %w", err)
	}
	okY, err := sharecodec.CheckPolynomialOnPoints(xs, yVals, t)
	if err != nil {
		return fmt.Errorf("tupleverify: checking y_final points: %w", err)
	}
	okZ, err := sharecodec.CheckPolynomialOnPoints(xs, zVals, t)
	if err != nil {
		return fmt.Errorf("tupleverify: checking z_final points: %w", err)
	}
	if !okX || !okY || !okZ {
		o.out <- OpenResult{Accepted: false}
		return nil
	}

	xFinal, err := sharecodec.InterpolateAtZero(xs[:t+1], xVals[:t+1])
	if err != nil {
		return err
	}
	yFinal, err := sharecodec.InterpolateAtZero(xs[:t+1], yVals[:t+1])
	if err != nil {
		return err
	}
	zFinal, err := sharecodec.InterpolateAtZero(xs[:t+1], zVals[:t+1])
	if err != nil {
		return err
	}
	o.out <- OpenResult{Accepted: zFinal.Equal(xFinal.Mul(yFinal))}
	return nil
}
