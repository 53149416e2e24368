package tupleverify

import (
	"fmt"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/multiplication"
	"github.com/akhilsb/velox-mpc/queue"
)

// pairKey names one ordered (chunk j, chunk j') cross-multiplication
// within a fold round.
type pairKey struct{ j, jp int }

// Round runs one ex-compress folding step (§4.6 step 2-4, SPEC_FULL §D
// open question (g)): splits the current (X,Y) batch into k chunks,
// folds them via the round's common-coin powers, and reconciles the
// carried aggregate z by summing every off-diagonal cross-chunk product.
type Round struct {
	cfg      *config.Config
	k        int
	chunkLen int

	xChunks, yChunks [][]field.Element
	xNext, yNext     []field.Element
	zOld             field.Element
	zAccum           field.Element

	weaks    map[uint64]*multiplication.Weak
	keyOf    map[uint64]pairKey
	scale    map[pairKey]field.Element
	done     map[pairKey]bool
	total    int
	finished bool

	out chan RoundResult
}

// RoundResult is one completed fold's output batch, ready either for
// another Round or for Open once its length reaches 1.
type RoundResult struct {
	X, Y []field.Element
	Z    field.Element
}

// NewRound pads x,y to a multiple of k, folds them locally (pure share
// arithmetic, no network round needed for the fold itself), and starts
// one weak-multiplication instance per off-diagonal chunk pair to
// reconcile z.
func NewRound(cfg *config.Config, ctrbc external.CTRBC, baseInstance uint64, k int, x, y []field.Element, z, coin field.Element) (*Round, error) {
	if k < 2 {
		return nil, fmt.Errorf("tupleverify: compression factor must be >= 2, got %d", k)
	}
	padded := ((len(x) + k - 1) / k) * k
	if padded == 0 {
		padded = k
	}
	px := padElements(x, padded)
	py := padElements(y, padded)
	m := padded / k

	chunkX := make([][]field.Element, k)
	chunkY := make([][]field.Element, k)
	for j := 0; j < k; j++ {
		chunkX[j] = px[j*m : (j+1)*m]
		chunkY[j] = py[j*m : (j+1)*m]
	}

	powers := make([]field.Element, k)
	invPowers := make([]field.Element, k)
	powers[0] = field.One()
	invPowers[0] = field.One()
	if k > 1 {
		coinInv := coin.Inverse()
		for j := 1; j < k; j++ {
			powers[j] = powers[j-1].Mul(coin)
			invPowers[j] = invPowers[j-1].Mul(coinInv)
		}
	}

	xNext := make([]field.Element, m)
	yNext := make([]field.Element, m)
	for p := 0; p < m; p++ {
		xNext[p] = field.Zero()
		yNext[p] = field.Zero()
		for j := 0; j < k; j++ {
			xNext[p] = xNext[p].Add(powers[j].Mul(chunkX[j][p]))
			yNext[p] = yNext[p].Add(invPowers[j].Mul(chunkY[j][p]))
		}
	}

	r := &Round{
		cfg:      cfg,
		k:        k,
		chunkLen: m,
		xChunks:  chunkX,
		yChunks:  chunkY,
		xNext:    xNext,
		yNext:    yNext,
		zOld:     z,
		zAccum:   field.Zero(),
		weaks:    make(map[uint64]*multiplication.Weak),
		keyOf:    make(map[uint64]pairKey),
		scale:    make(map[pairKey]field.Element),
		done:     make(map[pairKey]bool),
		out:      make(chan RoundResult, 1),
	}

	instance := baseInstance
	for j := 0; j < k; j++ {
		for jp := 0; jp < k; jp++ {
			if j == jp {
				continue
			}
			key := pairKey{j, jp}
			r.scale[key] = powers[j].Mul(invPowers[jp])
			w := multiplication.NewWeak(cfg, ctrbc, instance)
			r.weaks[instance] = w
			r.keyOf[instance] = key
			r.total++
			instance++
		}
	}
	return r, nil
}

// Start launches every off-diagonal weak multiplication, each drawing
// its own fresh r-shares from rQueue.
func (r *Round) Start(rQueue *queue.FIFO[field.Element]) error {
	for instance, w := range r.weaks {
		key := r.keyOf[instance]
		jChunk := r.chunkSlice(key.j, true)
		jpChunk := r.chunkSlice(key.jp, false)
		if err := w.Start(jChunk, jpChunk, rQueue); err != nil {
			return fmt.Errorf("tupleverify: starting cross multiply (%d,%d): %w", key.j, key.jp, err)
		}
	}
	return nil
}

// chunkSlice is a placeholder accessor kept distinct for x vs y chunks;
// both were already materialized in NewRound, so this simply indexes
// back into them via the round's stored padded chunks. Declared on Round
// for symmetry with the constructor's chunk slicing.
func (r *Round) chunkSlice(idx int, isX bool) []field.Element {
	if isX {
		return r.xChunks[idx]
	}
	return r.yChunks[idx]
}

func padElements(es []field.Element, n int) []field.Element {
	if len(es) == n {
		return es
	}
	out := make([]field.Element, n)
	copy(out, es)
	for i := len(es); i < n; i++ {
		out[i] = field.Zero()
	}
	return out
}

// Result streams this round's folded (X,Y,Z) once every cross
// multiplication has resolved.
func (r *Round) Result() <-chan RoundResult { return r.out }

// Dispatch routes one CTRBC delivery to the matching cross-multiplication
// sub-instance, if any, and finalizes the round once all have resolved.
func (r *Round) Dispatch(d external.CTRBCDelivery) error {
	w, ok := r.weaks[d.InstanceID]
	if !ok || r.finished {
		return nil
	}
	if err := w.OnCVecDelivery(d); err != nil {
		return err
	}
	select {
	case res := <-w.Result():
		key := r.keyOf[d.InstanceID]
		if r.done[key] {
			return nil
		}
		r.done[key] = true
		sum := field.Zero()
		for _, v := range res {
			sum = sum.Add(v)
		}
		r.zAccum = r.zAccum.Add(r.scale[key].Mul(sum))
		if len(r.done) == r.total {
			r.finished = true
			r.out <- RoundResult{X: r.xNext, Y: r.yNext, Z: r.zOld.Add(r.zAccum)}
		}
	default:
	}
	return nil
}
