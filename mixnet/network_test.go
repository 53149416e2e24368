package mixnet_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/mixnet"
	"github.com/akhilsb/velox-mpc/multiplication"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

type event struct {
	instanceID uint64
	sender     party.ID
	payload    []byte
}

// bus is the same breadth-first queued CTRBC fake used by
// circuit/driver_test.go, needed here for the same reason: a cascade of
// hash-agreement re-broadcasts must never race ahead of still-pending
// deliveries to other parties.
type bus struct {
	networks []*mixnet.Network
	queue    []event
}

func (b *bus) enqueue(sender party.ID, instanceID uint64, payload []byte) {
	b.queue = append(b.queue, event{instanceID, sender, payload})
}

func (b *bus) drain(t *testing.T) {
	t.Helper()
	for len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		for _, n := range b.networks {
			require.NoError(t, n.Dispatch(external.CTRBCDelivery{InstanceID: e.instanceID, Sender: e.sender, Payload: e.payload}))
		}
	}
}

type perPartyCTRBC struct {
	id  party.ID
	bus *bus
}

func (p *perPartyCTRBC) Send(instanceID uint64, payload []byte) error {
	p.bus.enqueue(p.id, instanceID, payload)
	return nil
}
func (p *perPartyCTRBC) Deliveries() <-chan external.CTRBCDelivery { return nil }

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
		NumNodes: n, MyID: party.ID(id), NumFaults: faults,
		PerBatch: 1, TotBatches: 1, MaxDepth: 1,
		CompressionFactor: 2, MultiplicationSwitchThreshold: n, OutputMaskSize: 1,
	}
}

// TestSingleLayerSwap runs a 2-wire, 1-layer network with the swap bit
// fixed to 1: the two input wires must come out swapped.
func TestSingleLayerSwap(t *testing.T) {
	n, faults := 4, 1
	x, y := field.FromUint64(3), field.FromUint64(9)
	xShares := dealShares(t, faults, n, x)
	yShares := dealShares(t, faults, n, y)
	bitShares := dealShares(t, faults, n, field.One())
	rShares := dealShares(t, faults, n, field.Zero())
	oShares := dealShares(t, 2*faults, n, field.Zero())

	b := &bus{}
	var networks []*mixnet.Network
	for i := 0; i < n; i++ {
		cfg := buildConfig(n, faults, i)
		ctrbc := &perPartyCTRBC{id: party.ID(i), bus: b}
		engine := multiplication.NewEngine(cfg, ctrbc)
		rQueue := queue.New[field.Element]()
		rQueue.Push(rShares[i])
		oQueue := queue.New[field.Element]()
		oQueue.Push(oShares[i])
		bitQueue := queue.New[field.Element]()
		bitQueue.Push(bitShares[i])
		net, err := mixnet.New(cfg, engine, rQueue, oQueue, bitQueue, 0, 2)
		require.NoError(t, err)
		networks = append(networks, net)
	}
	b.networks = networks

	for i, net := range networks {
		require.NoError(t, net.Start([]field.Element{xShares[i], yShares[i]}))
	}
	b.drain(t)

	// Output wires are fresh t-sharings from the multiplication engine;
	// reconstruct each wire from every party's share.
	xs := make([]field.Element, n)
	wire0 := make([]field.Element, n)
	wire1 := make([]field.Element, n)
	for i, net := range networks {
		select {
		case out := <-net.Result():
			xs[i] = field.FromUint64(uint64(i + 1))
			wire0[i] = out.Wires[0]
			wire1[i] = out.Wires[1]
		default:
			t.Fatalf("party %d: expected a completed result", i)
		}
	}
	got0, err := sharecodec.InterpolateAtZero(xs, wire0)
	require.NoError(t, err)
	require.True(t, got0.Equal(y), "wire 0")
	got1, err := sharecodec.InterpolateAtZero(xs, wire1)
	require.NoError(t, err)
	require.True(t, got1.Equal(x), "wire 1")
}
