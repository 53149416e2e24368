// Package multiplication implements the Multiplication Engine of §4.5:
// two interchangeable sub-protocols for turning a batch of (a,b) t-sharing
// pairs into t-sharings of their products, chosen per call by a threshold
// on batch size, plus the weak-multiplication variant ex-compress uses
// internally.
package multiplication

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// Quadratic runs §4.5.1's one-round multiplication sub-protocol: a
// single CTRBC broadcast of the locally re-randomized product vector,
// followed by a hash-agreement round over the publicly reconstructed
// values.
type Quadratic struct {
	cfg          *config.Config
	cVec         external.CTRBC
	hashBus      external.CTRBC
	instance     uint64
	n            int

	rShares []field.Element
	started bool

	cVectors map[party.ID][]field.Element
	recon    []field.Element
	reconDone bool

	hashes       map[party.ID]hashutil.Digest
	agreed       bool

	out chan []field.Element
}

// NewQuadratic builds one quadratic-multiplication instance for a
// single depth's batch. cVec and hashBus may be the same CTRBC bound to
// distinct instance ids (instance, instance+1) -- callers typically
// reserve a contiguous instance-id range per depth.
func NewQuadratic(cfg *config.Config, cVec, hashBus external.CTRBC, instance uint64) *Quadratic {
	return &Quadratic{
		cfg:      cfg,
		cVec:     cVec,
		hashBus:  hashBus,
		instance: instance,
		cVectors: make(map[party.ID][]field.Element),
		hashes:   make(map[party.ID]hashutil.Digest),
		out:      make(chan []field.Element, 1),
	}
}

// Result streams the batch's next-layer t-sharings once hash agreement
// completes.
func (q *Quadratic) Result() <-chan []field.Element { return q.out }

// Start computes this party's local share of c_i = a_i*b_i + r_i + o_i
// for every batch position, popping one r-share and one o-share per
// position (§4.5.1), and broadcasts the resulting vector.
func (q *Quadratic) Start(a, b []field.Element, rQueue, oQueue *queue.FIFO[field.Element]) error {
	if len(a) != len(b) {
		return fmt.Errorf("multiplication: quadratic batch size mismatch (%d a, %d b)", len(a), len(b))
	}
	n := len(a)
	rShares, ok := rQueue.PopN(n)
	if !ok {
		return fmt.Errorf("multiplication: R-queue underrun (need %d)", n)
	}
	oShares, ok := oQueue.PopN(n)
	if !ok {
		return fmt.Errorf("multiplication: O-queue underrun (need %d)", n)
	}
	q.rShares = rShares
	q.n = n
	q.started = true

	c := make([]field.Element, n)
	for i := range c {
		c[i] = a[i].Mul(b[i]).Add(rShares[i]).Add(oShares[i])
	}
	payload, err := wire.Marshal(elementsToBytes(c))
	if err != nil {
		return fmt.Errorf("multiplication: encoding quadratic c-vector: %w", err)
	}
	return q.cVec.Send(q.instance, payload)
}

// OnCVecDelivery handles one sender's broadcast c-vector, reconstructing
// every position by interpolation once n-t vectors have arrived.
func (q *Quadratic) OnCVecDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != q.instance || q.reconDone {
		return nil
	}
	var raw [][]byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("multiplication: decoding c-vector from %s: %w", d.Sender, err)
	}
	vec, err := bytesToElements(raw)
	if err != nil {
		return fmt.Errorf("multiplication: parsing c-vector from %s: %w", d.Sender, err)
	}
	q.cVectors[d.Sender] = vec

	need := q.cfg.NumNodes - q.cfg.Threshold()
	if len(q.cVectors) < need {
		return nil
	}
	n := len(vec)
	xs := make([]field.Element, 0, need)
	senders := make([]party.ID, 0, need)
	for id := range q.cVectors {
		xs = append(xs, field.FromUint64(uint64(id)+1))
		senders = append(senders, id)
		if len(senders) == need {
			break
		}
	}
	recon := make([]field.Element, n)
	for i := 0; i < n; i++ {
		ys := make([]field.Element, len(senders))
		for j, s := range senders {
			ys[j] = q.cVectors[s][i]
		}
		v, err := sharecodec.InterpolateAtZero(xs, ys)
		if err != nil {
			return fmt.Errorf("multiplication: reconstructing position %d: %w", i, err)
		}
		recon[i] = v
	}
	q.recon = recon
	q.reconDone = true

	digest := hashutil.Sum("velox-mpc/quadratic-recon", elementsDigestInput(recon)...)
	payload, err := wire.Marshal(digest[:])
	if err != nil {
		return fmt.Errorf("multiplication: encoding reconstruction hash: %w", err)
	}
	return q.hashBus.Send(q.instance, payload)
}

// OnHashDelivery handles one sender's broadcast hash of its own
// reconstructed vector; once n-t senders agree on a single hash value,
// every position's next-layer t-sharing is ĉ_i minus this party's own
// stored r-share.
func (q *Quadratic) OnHashDelivery(d external.CTRBCDelivery) error {
	if d.InstanceID != q.instance || q.agreed || !q.reconDone {
		return nil
	}
	var raw []byte
	if err := wire.Unmarshal(d.Payload, &raw); err != nil {
		return fmt.Errorf("multiplication: decoding hash from %s: %w", d.Sender, err)
	}
	var digest hashutil.Digest
	copy(digest[:], raw)
	q.hashes[d.Sender] = digest

	need := q.cfg.NumNodes - q.cfg.Threshold()
	counts := make(map[hashutil.Digest]int)
	for _, h := range q.hashes {
		counts[h]++
	}
	for _, c := range counts {
		if c >= need {
			q.agreed = true
			next := make([]field.Element, q.n)
			for i := range next {
				next[i] = q.recon[i].Sub(q.rShares[i])
			}
			q.out <- next
			return nil
		}
	}
	return nil
}

func elementsToBytes(es []field.Element) [][]byte {
	out := make([][]byte, len(es))
	for i, e := range es {
		out[i] = e.Bytes()
	}
	return out
}

func bytesToElements(bs [][]byte) ([]field.Element, error) {
	out := make([]field.Element, len(bs))
	for i, b := range bs {
		e, err := field.FromBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func elementsDigestInput(es []field.Element) [][]byte {
	return elementsToBytes(es)
}
