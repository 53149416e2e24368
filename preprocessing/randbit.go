package preprocessing

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// RandBit derives one t-sharing of a uniformly random bit (0 or 1)
// from an existing R-sharing r and its square r², via the
// double-and-square trick (§C.1, grounded on
// rand_sharings/rand_bit.rs): publicly reconstruct r², take a
// canonical square root s, and form r · s⁻¹, which lands on ±1
// because r/|r| has no information about r's shared value beyond its
// sign; the final sharing is (1 + r · s⁻¹)/2, mapping -1 to 0 and 1
// to 1.
//
// Squaring r into a t-sharing of r² is the caller's job (one call into
// the multiplication engine with a=b=r); RandBit only handles the
// public reconstruction and the resulting bit-sharing.
type RandBit struct {
	cfg      *config.Config
	ctrbc    external.CTRBC
	instance uint64

	rShare   field.Element
	started  bool
	recon    map[party.ID]field.Element
	done     bool
	out      chan field.Element
}

// NewRandBit builds a RandBit reconstruction bound to a dedicated
// CTRBC instance (distinct from every ACSS/Sh2t/multiplication
// instance so its broadcasts never collide).
func NewRandBit(cfg *config.Config, ctrbc external.CTRBC, instance uint64) *RandBit {
	return &RandBit{
		cfg:      cfg,
		ctrbc:    ctrbc,
		instance: instance,
		recon:    make(map[party.ID]field.Element),
		out:      make(chan field.Element, 1),
	}
}

// Result streams the single derived bit-sharing once reconstruction
// completes.
func (b *RandBit) Result() <-chan field.Element { return b.out }

// Start broadcasts this party's share of r² (rSquareShare) and records
// r's own share (rShare) for the final multiply.
func (b *RandBit) Start(rShare, rSquareShare field.Element) error {
	b.rShare = rShare
	b.started = true
	payload, err := wire.Marshal(rSquareShare.Bytes())
	if err != nil {
		return fmt.Errorf("preprocessing: encoding rand-bit reconstruction share: %w", err)
	}
	return b.ctrbc.Send(b.instance, payload)
}

// OnCTRBCDelivery handles one party's broadcast r²-share, reconstructing
// and resolving to a bit-sharing once t+1 shares are in hand.
func (b *RandBit) OnCTRBCDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != b.instance || b.done || !b.started {
		return nil
	}
	var raw []byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("preprocessing: decoding rand-bit share from %s: %w", d.Sender, err)
	}
	share, err := field.FromBytes(raw)
	if err != nil {
		return fmt.Errorf("preprocessing: parsing rand-bit share from %s: %w", d.Sender, err)
	}
	b.recon[d.Sender] = share

	threshold := b.cfg.Threshold() + 1
	if len(b.recon) < threshold {
		return nil
	}
	xs := make([]field.Element, 0, len(b.recon))
	ys := make([]field.Element, 0, len(b.recon))
	for id, s := range b.recon {
		xs = append(xs, field.FromUint64(uint64(id)+1))
		ys = append(ys, s)
	}
	rSquared, err := sharecodec.InterpolateAtZero(xs, ys)
	if err != nil {
		return fmt.Errorf("preprocessing: interpolating r-squared: %w", err)
	}
	root, ok := rSquared.Sqrt()
	if !ok {
		return fmt.Errorf("preprocessing: reconstructed r-squared %v has no square root", rSquared)
	}
	// Canonicalize the root's sign (±root are both valid square roots)
	// by convention: the root whose big-endian encoding has an even
	// final byte.
	rootBytes := root.Bytes()
	if rootBytes[len(rootBytes)-1]&1 == 1 {
		root = root.Neg()
	}
	b.done = true
	sign := b.rShare.Mul(root.Inverse())
	b.out <- field.One().Add(sign).Mul(field.FromUint64(2).Inverse())
	return nil
}
