package circuit_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/circuit"
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/multiplication"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// event is one broadcast waiting to be fanned out to every driver.
type event struct {
	instanceID uint64
	sender     party.ID
	payload    []byte
}

// bus is a breadth-first CTRBC fake: Send enqueues rather than
// recursively dispatching, so a cascade of re-broadcasts triggered
// mid-delivery (e.g. the hash-agreement round firing as soon as a
// party's reconstruction completes) is processed in FIFO order instead
// of racing against still-pending deliveries to other parties.
type bus struct {
	drivers []*circuit.Driver
	queue   []event
}

func (b *bus) enqueue(sender party.ID, instanceID uint64, payload []byte) {
	b.queue = append(b.queue, event{instanceID, sender, payload})
}

func (b *bus) drain(t *testing.T) {
	t.Helper()
	for len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		for _, d := range b.drivers {
			require.NoError(t, d.Dispatch(external.CTRBCDelivery{InstanceID: e.instanceID, Sender: e.sender, Payload: e.payload}))
		}
	}
}

// perPartyCTRBC binds one party's Send calls to the shared bus under
// that party's own id.
type perPartyCTRBC struct {
	id  party.ID
	bus *bus
}

func (p *perPartyCTRBC) Send(instanceID uint64, payload []byte) error {
	p.bus.enqueue(p.id, instanceID, payload)
	return nil
}
func (p *perPartyCTRBC) Deliveries() <-chan external.CTRBCDelivery { return nil }

// dealShares splits secret into n degree-`degree` Shamir shares at
// points 1..n, for pre-loading test fixtures (inputs, R-queue, O-queue)
// without going through the full ACSS/Sh2t pipeline.
func dealShares(t *testing.T, degree, n int, secret field.Element) []field.Element {
	t.Helper()
	poly, err := sharecodec.NewRandomPolynomial(degree, secret, rand.Reader)
	require.NoError(t, err)
	shares := make([]field.Element, n)
	for i := 0; i < n; i++ {
		shares[i] = poly.Evaluate(field.FromUint64(uint64(i + 1)))
	}
	return shares
}

func buildConfig(n, faults, id int) *config.Config {
	return &config.Config{
		NumNodes:                      n,
		MyID:                          party.ID(id),
		NumFaults:                     faults,
		PerBatch:                      1,
		TotBatches:                    1,
		MaxDepth:                      1,
		DelinearizationDepth:          0,
		CompressionFactor:             2,
		MultiplicationSwitchThreshold: n,
		OutputMaskSize:                1,
	}
}

// TestSingleGateMultiply runs the §8 scenario 1 happy path: one
// multiplication gate, inputs 3 and 5, expected output 15 at every
// honest party.
func TestSingleGateMultiply(t *testing.T) {
	n, faults := 4, 1
	c := &circuit.Circuit{
		NumWires: 3,
		Inputs:   []int{0, 1},
		Layers: []circuit.Layer{
			{Muls: []circuit.MulGate{{Out: 2, A: 0, B: 1}}},
		},
		Outputs: []int{2},
	}

	aShares := dealShares(t, faults, n, field.FromUint64(3))
	bShares := dealShares(t, faults, n, field.FromUint64(5))
	rShares := dealShares(t, faults, n, field.Zero())
	oShares := dealShares(t, 2*faults, n, field.Zero())

	b := &bus{}
	var drivers []*circuit.Driver
	for i := 0; i < n; i++ {
		cfg := buildConfig(n, faults, i)
		ctrbc := &perPartyCTRBC{id: party.ID(i), bus: b}
		engine := multiplication.NewEngine(cfg, ctrbc)
		rQueue := queue.New[field.Element]()
		rQueue.Push(rShares[i])
		oQueue := queue.New[field.Element]()
		oQueue.Push(oShares[i])
		d := circuit.New(cfg, c, engine, rQueue, oQueue, 0)
		drivers = append(drivers, d)
	}
	b.drivers = drivers

	for i, d := range drivers {
		inputs := map[int]field.Element{0: aShares[i], 1: bShares[i]}
		require.NoError(t, d.Start(inputs))
	}
	b.drain(t)

	// Each party holds a t-sharing of the product, not the product
	// itself: reconstruct it from every party's share.
	xs := make([]field.Element, n)
	outShares := make([]field.Element, n)
	tripleC := make([]field.Element, n)
	for i, d := range drivers {
		select {
		case out := <-d.Result():
			require.Len(t, out.Outputs, 1)
			require.Len(t, out.Triples, 1)
			xs[i] = field.FromUint64(uint64(i + 1))
			outShares[i] = out.Outputs[0]
			tripleC[i] = out.Triples[0].C
		default:
			t.Fatalf("party %d: expected a completed result", i)
		}
	}
	product, err := sharecodec.InterpolateAtZero(xs, outShares)
	require.NoError(t, err)
	require.True(t, product.Equal(field.FromUint64(15)), "reconstructed output")
	tripleProduct, err := sharecodec.InterpolateAtZero(xs, tripleC)
	require.NoError(t, err)
	require.True(t, tripleProduct.Equal(field.FromUint64(15)), "reconstructed triple")
}
