// Package preprocessing implements the Preprocessing Orchestrator of
// §4.4: every party deals an ACSS-AB batch of random field elements,
// an Sh2t batch of zero, and an AVSS batch of output-mask secrets; once
// a dealer's full contribution is accounted for it is submitted to ACS;
// on ACS output, a Vandermonde randomness extraction turns the agreed
// dealers' sharings into the R-queue, O-queue, Coin-queue and
// OutputMask-queue that feed every downstream component.
package preprocessing

import (
	"fmt"
	"io"

	"github.com/akhilsb/velox-mpc/acss"
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sh2t"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

type dealerProgress struct {
	acssBatches map[uint64]bool
	sh2tBatches map[uint64]bool
	maskDone    bool
	inputDone   bool
}

func (p *dealerProgress) complete(totBatches int, requireInput bool) bool {
	if requireInput && !p.inputDone {
		return false
	}
	return len(p.acssBatches) == totBatches && len(p.sh2tBatches) == totBatches && p.maskDone
}

// Orchestrator runs one preprocessing epoch: a single round of
// per-dealer ACSS/Sh2t/AVSS-mask batches, gated by one ACS instance.
// A node creates a fresh Orchestrator (with an incrementing epoch) each
// time its queues run low.
type Orchestrator struct {
	cfg          *config.Config
	acs          external.ACS
	epoch        uint64
	requireInput bool

	acssShares map[party.ID]map[uint64][]field.Element
	sh2tShares map[party.ID]map[uint64][]field.Element
	maskShares map[party.ID][]field.Element

	progress  map[party.ID]*dealerProgress
	submitted map[party.ID]bool

	rQueue          *queue.FIFO[field.Element]
	oQueue          *queue.FIFO[field.Element]
	coinQueue       *queue.FIFO[field.Element]
	outputMaskQueue *queue.FIFO[field.Element]
}

// NewOrchestrator builds an Orchestrator for one preprocessing epoch.
func NewOrchestrator(cfg *config.Config, acs external.ACS, epoch uint64) *Orchestrator {
	o := &Orchestrator{
		cfg:             cfg,
		acs:             acs,
		epoch:           epoch,
		acssShares:      make(map[party.ID]map[uint64][]field.Element),
		sh2tShares:      make(map[party.ID]map[uint64][]field.Element),
		maskShares:      make(map[party.ID][]field.Element),
		progress:        make(map[party.ID]*dealerProgress),
		submitted:       make(map[party.ID]bool),
		rQueue:          queue.New[field.Element](),
		oQueue:          queue.New[field.Element](),
		coinQueue:       queue.New[field.Element](),
		outputMaskQueue: queue.New[field.Element](),
	}
	for i := 0; i < cfg.NumNodes; i++ {
		o.progress[party.ID(i)] = &dealerProgress{
			acssBatches: make(map[uint64]bool),
			sh2tBatches: make(map[uint64]bool),
		}
	}
	return o
}

func dealingBatchID(epoch uint64, batch int) uint64 {
	return epoch<<32 | uint64(uint32(batch))
}

// RequireInputSharing marks this epoch as circuit-start preprocessing:
// ACS submission additionally waits on each dealer's input-sharing
// completion (§4.4 "its input-sharing if applicable"). Call before any
// OnACSSCompletion/OnSh2tCompletion/OnAVSSShare/OnInputCompletion.
func (o *Orchestrator) RequireInputSharing() { o.requireInput = true }

// OnInputCompletion records that dealer's private-input ACSS-AB batch
// (circuit/input.go) has terminated at this party.
func (o *Orchestrator) OnInputCompletion(dealer party.ID) error {
	o.progress[dealer].inputDone = true
	return o.maybeSubmit(dealer)
}

// DealOwnBatches drives this party's own dealer role: TotBatches
// ACSS-AB batches of random field elements, the matching Sh2t batches
// of zero, and one AVSS batch of output-mask secrets (§4.4 "every
// party acts as a dealer").
func (o *Orchestrator) DealOwnBatches(acssDealer *acss.Dealer, sh2tDealer *sh2t.Dealer, avss external.AVSS, rng io.Reader) error {
	for b := 0; b < o.cfg.TotBatches; b++ {
		secrets := make([]field.Element, o.cfg.PerBatch)
		zeros := make([]field.Element, o.cfg.PerBatch)
		for k := range secrets {
			s, err := field.Random(rng)
			if err != nil {
				return fmt.Errorf("preprocessing: sampling batch %d secret %d: %w", b, k, err)
			}
			secrets[k] = s
			zeros[k] = field.Zero()
		}
		id := dealingBatchID(o.epoch, b)
		if err := acssDealer.Deal(id, secrets, rng); err != nil {
			return fmt.Errorf("preprocessing: dealing ACSS batch %d: %w", b, err)
		}
		if err := sh2tDealer.Deal(id, zeros, rng); err != nil {
			return fmt.Errorf("preprocessing: dealing Sh2t batch %d: %w", b, err)
		}
	}
	maskSecrets := make([]field.Element, o.cfg.OutputMaskSize)
	for k := range maskSecrets {
		s, err := field.Random(rng)
		if err != nil {
			return fmt.Errorf("preprocessing: sampling mask secret %d: %w", k, err)
		}
		maskSecrets[k] = s
	}
	if err := avss.Deal(o.epoch, maskSecretsToFieldBytes(maskSecrets)); err != nil {
		return fmt.Errorf("preprocessing: dealing output-mask batch: %w", err)
	}
	return nil
}

// OnACSSCompletion records a delivered ACSS-AB batch from dealer.
func (o *Orchestrator) OnACSSCompletion(c acss.Completion) error {
	// dealingBatchID embeds the epoch in the high bits; batches outside
	// this orchestrator's epoch belong to a different preprocessing
	// round and are ignored here.
	if c.Batch>>32 != o.epoch {
		return nil
	}
	slot := c.Batch & 0xffffffff
	m, ok := o.acssShares[c.Dealer]
	if !ok {
		m = make(map[uint64][]field.Element)
		o.acssShares[c.Dealer] = m
	}
	m[slot] = c.Shares
	o.progress[c.Dealer].acssBatches[slot] = true
	return o.maybeSubmit(c.Dealer)
}

// OnSh2tCompletion records a delivered Sh2t batch from dealer.
func (o *Orchestrator) OnSh2tCompletion(c sh2t.Completion) error {
	if c.Batch>>32 != o.epoch {
		return nil
	}
	slot := c.Batch & 0xffffffff
	m, ok := o.sh2tShares[c.Dealer]
	if !ok {
		m = make(map[uint64][]field.Element)
		o.sh2tShares[c.Dealer] = m
	}
	m[slot] = c.Shares
	o.progress[c.Dealer].sh2tBatches[slot] = true
	return o.maybeSubmit(c.Dealer)
}

// OnAVSSShare records this party's share of a dealer's output-mask
// batch.
func (o *Orchestrator) OnAVSSShare(e external.AVSSShareEvent) error {
	shares, err := shareTripleToElements(e.ShareTrip)
	if err != nil {
		return fmt.Errorf("preprocessing: decoding mask share from dealer %s: %w", e.Origin, err)
	}
	o.maskShares[e.Origin] = shares
	o.progress[e.Origin].maskDone = true
	return o.maybeSubmit(e.Origin)
}

func (o *Orchestrator) maybeSubmit(dealer party.ID) error {
	p := o.progress[dealer]
	if p == nil || o.submitted[dealer] || !p.complete(o.cfg.TotBatches, o.requireInput) {
		return nil
	}
	o.submitted[dealer] = true
	if err := o.acs.Ready(o.epoch, dealer); err != nil {
		return fmt.Errorf("preprocessing: submitting dealer %s to ACS: %w", dealer, err)
	}
	return nil
}

// Extraction reports how many fresh sharings landed in each queue
// after one ACS output (§4.4 "Vandermonde randomness extraction").
type Extraction struct {
	RCount          int
	CoinCount       int
	OutputMaskCount int
	OCount          int
}

// RQueue returns the multiplicative-mask queue consumed by the
// multiplication engine and the tuple verifier's delinearization step.
func (o *Orchestrator) RQueue() *queue.FIFO[field.Element] { return o.rQueue }

// OQueue returns the fresh-zero 2t-sharing queue consumed by the
// quadratic multiplication sub-protocol.
func (o *Orchestrator) OQueue() *queue.FIFO[field.Element] { return o.oQueue }

// CoinQueue returns the queue of coin-flip shares consumed by the
// common coin.
func (o *Orchestrator) CoinQueue() *queue.FIFO[field.Element] { return o.coinQueue }

// OutputMaskQueue returns the queue of masking shares consumed by the
// output stage.
func (o *Orchestrator) OutputMaskQueue() *queue.FIFO[field.Element] { return o.outputMaskQueue }

// OnACSOutput performs the Vandermonde randomness extraction once ACS
// agrees on a set of at least n-t ready dealers (§4.4). It is a no-op
// for any ACS output belonging to a different epoch.
func (o *Orchestrator) OnACSOutput(out external.ACSOutput) (*Extraction, error) {
	if out.Instance != o.epoch {
		return nil, nil
	}
	n, t := o.cfg.NumNodes, o.cfg.Threshold()
	m := 2*t + 1
	set := out.Set.Slice()
	if len(set) < m {
		return nil, fmt.Errorf("preprocessing: ACS output set has %d members, need at least %d", len(set), m)
	}
	extractDealers := set[:m]
	outRows := n - t
	xs := make([]field.Element, outRows)
	for i := range xs {
		xs[i] = field.FromUint64(uint64(i + 1))
	}

	acssFlat, err := o.extractFlat(o.acssShares, extractDealers, xs)
	if err != nil {
		return nil, fmt.Errorf("preprocessing: extracting ACSS randomness: %w", err)
	}
	sh2tFlat, err := o.extractFlat(o.sh2tShares, extractDealers, xs)
	if err != nil {
		return nil, fmt.Errorf("preprocessing: extracting Sh2t randomness: %w", err)
	}

	// Reserve the tail 2n elements for the common coin (§4.4); split
	// the remainder evenly between the R-queue and the OutputMask-queue
	// since the spec does not fix their relative proportion.
	coinCount := 2 * n
	if coinCount > len(acssFlat) {
		coinCount = len(acssFlat)
	}
	rest := acssFlat[:len(acssFlat)-coinCount]
	coinPart := acssFlat[len(acssFlat)-coinCount:]
	half := len(rest) / 2

	o.rQueue.Push(rest[:half]...)
	o.outputMaskQueue.Push(rest[half:]...)
	o.coinQueue.Push(coinPart...)
	o.oQueue.Push(sh2tFlat...)

	return &Extraction{
		RCount:          half,
		OutputMaskCount: len(rest) - half,
		CoinCount:       len(coinPart),
		OCount:          len(sh2tFlat),
	}, nil
}

// extractFlat gathers one column per (batch, slot-index) across
// extractDealers, applies the Vandermonde extractor, and flattens the
// resulting outRows x numSlots matrix slot-major into a single slice.
func (o *Orchestrator) extractFlat(shares map[party.ID]map[uint64][]field.Element, extractDealers []party.ID, xs []field.Element) ([]field.Element, error) {
	var columns [][]field.Element
	for b := 0; b < o.cfg.TotBatches; b++ {
		for k := 0; k < o.cfg.PerBatch; k++ {
			col := make([]field.Element, len(extractDealers))
			for i, d := range extractDealers {
				batchShares, ok := shares[d][uint64(b)]
				if !ok || k >= len(batchShares) {
					return nil, fmt.Errorf("preprocessing: missing share for dealer %s batch %d slot %d", d, b, k)
				}
				col[i] = batchShares[k]
			}
			columns = append(columns, col)
		}
	}
	extracted, err := sharecodec.ExtractRandomness(xs, columns)
	if err != nil {
		return nil, err
	}
	flat := make([]field.Element, 0, len(columns)*len(xs))
	for colIdx := range columns {
		for i := range xs {
			flat = append(flat, extracted[i][colIdx])
		}
	}
	return flat, nil
}
