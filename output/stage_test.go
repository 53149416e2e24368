package output_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/output"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// ctrbcEvent is one reliably-broadcast payload waiting to be fanned out.
type ctrbcEvent struct {
	instanceID uint64
	sender     party.ID
	payload    []byte
}

// ctrbcFake is a breadth-first CTRBC fake bound to a single callback per
// party, avoiding the reentrancy hazard a direct recursive dispatch would
// create once a delivery triggers a re-broadcast from within a handler.
type ctrbcFake struct {
	deliver []func(external.CTRBCDelivery) error
	queue   []ctrbcEvent
}

func (f *ctrbcFake) sendFrom(id party.ID) external.CTRBC {
	return &perPartySend{id: id, fake: f}
}

type perPartySend struct {
	id   party.ID
	fake *ctrbcFake
}

func (p *perPartySend) Send(instanceID uint64, payload []byte) error {
	p.fake.queue = append(p.fake.queue, ctrbcEvent{instanceID, p.id, payload})
	return nil
}
func (p *perPartySend) Deliveries() <-chan external.CTRBCDelivery { return nil }

func (f *ctrbcFake) drain(t *testing.T) {
	t.Helper()
	for len(f.queue) > 0 {
		e := f.queue[0]
		f.queue = f.queue[1:]
		for _, d := range f.deliver {
			require.NoError(t, d(external.CTRBCDelivery{InstanceID: e.instanceID, Sender: e.sender, Payload: e.payload}))
		}
	}
}

// acsFake delivers an ACSOutput to every registered stage as soon as
// n-t Ready calls for the same instance are observed, mirroring the
// n-t liveness condition used by the real ACS interface.
type acsFake struct {
	n, t     int
	ready    map[uint64]map[party.ID]bool
	deliver  []func(external.ACSOutput) error
	finalSet party.Set
}

func newACSFake(n, t int, finalSet party.Set) *acsFake {
	return &acsFake{n: n, t: t, ready: make(map[uint64]map[party.ID]bool), finalSet: finalSet}
}

func (a *acsFake) Ready(instance uint64, dealer party.ID) error {
	m, ok := a.ready[instance]
	if !ok {
		m = make(map[party.ID]bool)
		a.ready[instance] = m
	}
	if m[dealer] {
		return nil
	}
	m[dealer] = true
	if len(m) != a.n-a.t {
		return nil
	}
	for _, d := range a.deliver {
		if err := d(external.ACSOutput{Instance: instance, Set: a.finalSet}); err != nil {
			return err
		}
	}
	return nil
}
func (a *acsFake) Outputs() <-chan external.ACSOutput { return nil }

// avssFake answers OpenFor by delivering, to every registered stage, the
// pre-computed additive mask contribution for the requested origin. A
// real AVSS oracle's open is a broadcast primitive too: every honest
// party observes the same opened value regardless of who first asked
// for it, so the first OpenFor call for an (instance, origin) pair is
// enough to trigger delivery everywhere.
type avssFake struct {
	contributions map[party.ID][]byte // origin -> encoded per-wire additive share
	opened        map[party.ID]bool
	deliver       []func(external.AVSSOpenEvent) error
}

func newAVSSFake(contributions map[party.ID][]byte) *avssFake {
	return &avssFake{contributions: contributions, opened: make(map[party.ID]bool)}
}

func (a *avssFake) Deal(instance uint64, secrets []external.FieldBytes) error { return nil }
func (a *avssFake) OpenFor(instance uint64, origin party.ID) error {
	if a.opened[origin] {
		return nil
	}
	a.opened[origin] = true
	payload, ok := a.contributions[origin]
	if !ok {
		return nil
	}
	for _, d := range a.deliver {
		if err := d(external.AVSSOpenEvent{Origin: origin, ShareTrip: payload}); err != nil {
			return err
		}
	}
	return nil
}
func (a *avssFake) Shares() <-chan external.AVSSShareEvent { return nil }
func (a *avssFake) Opens() <-chan external.AVSSOpenEvent   { return nil }

func dealOutputShares(t *testing.T, degree, n int, secret field.Element) []field.Element {
	t.Helper()
	poly, err := sharecodec.NewRandomPolynomial(degree, secret, rand.Reader)
	require.NoError(t, err)
	shares := make([]field.Element, n)
	for i := 0; i < n; i++ {
		shares[i] = poly.Evaluate(field.FromUint64(uint64(i + 1)))
	}
	return shares
}

func encodeWireVals(t *testing.T, n int, vals map[int]field.Element) []byte {
	t.Helper()
	raw := make([][]byte, n)
	for i := 0; i < n; i++ {
		v, ok := vals[i]
		if !ok {
			v = field.Zero()
		}
		raw[i] = v.Bytes()
	}
	payload, err := wire.Marshal(raw)
	require.NoError(t, err)
	return payload
}

// TestOutputStageTwoWires runs §8 scenario 6: two output wires y1=1,
// y2=2, masked by one OutputMask-queue share each, publicly
// reconstructed, and unmasked via the AVSS oracle's per-finisher reveal
// once ACS agrees on a finisher set.
func TestOutputStageTwoWires(t *testing.T) {
	n, faults := 4, 1
	epoch := uint64(7)

	y1, y2 := field.FromUint64(1), field.FromUint64(2)
	m1, m2 := field.FromUint64(11), field.FromUint64(22)
	m1Shares := dealOutputShares(t, faults, n, m1)
	m2Shares := dealOutputShares(t, faults, n, m2)

	finishers := party.NewSet(0, 1, 2)

	// Split each mask secret additively across the finisher set so that
	// summing every finisher's contribution recovers the same m1, m2
	// used to build the masked broadcasts.
	ids := finishers.Slice()
	contrib := make(map[party.ID][]field.Element, len(ids))
	for _, id := range ids {
		contrib[id] = []field.Element{field.Zero(), field.Zero()}
	}
	contrib[ids[0]] = []field.Element{m1, m2}

	maskedBus := &ctrbcFake{}
	successBus := &ctrbcFake{}
	acs := newACSFake(n, faults, finishers)

	avssPayloads := make(map[party.ID][]byte, len(ids))
	for _, id := range ids {
		avssPayloads[id] = encodeWireVals(t, 2, map[int]field.Element{0: contrib[id][0], 1: contrib[id][1]})
	}
	avss := newAVSSFake(avssPayloads)

	stages := make([]*output.Stage, n)
	for i := 0; i < n; i++ {
		cfg := &config.Config{
			NumNodes: n, MyID: party.ID(i), NumFaults: faults,
			PerBatch: 1, TotBatches: 1, CompressionFactor: 2,
			MultiplicationSwitchThreshold: n, OutputMaskSize: 2,
		}
		s := output.New(cfg, maskedBus.sendFrom(party.ID(i)), successBus.sendFrom(party.ID(i)), acs, avss, epoch, epoch)
		stages[i] = s
	}
	for _, s := range stages {
		maskedBus.deliver = append(maskedBus.deliver, s.OnMaskedDelivery)
		successBus.deliver = append(successBus.deliver, s.OnSuccessDelivery)
		acs.deliver = append(acs.deliver, s.OnACSOutput)
		avss.deliver = append(avss.deliver, s.OnAVSSOpen)
	}

	for i, s := range stages {
		q := queue.New[field.Element]()
		q.Push(m1Shares[i])
		q.Push(m2Shares[i])
		require.NoError(t, s.Start([]field.Element{y1, y2}, q))
	}

	maskedBus.drain(t)
	successBus.drain(t)

	for i, s := range stages {
		select {
		case out := <-s.Result():
			require.False(t, out.Aborted, "party %d", i)
			require.Len(t, out.Outputs, 2)
			require.True(t, out.Outputs[0].Equal(y1), "party %d wire 0", i)
			require.True(t, out.Outputs[1].Equal(y2), "party %d wire 1", i)
		default:
			t.Fatalf("party %d: expected a completed outcome", i)
		}
	}
}
