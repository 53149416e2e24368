package acss_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/acss"
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// ctrbcFake fans a single dealer's broadcasts out to every receiver
// synchronously, standing in for a real CTRBC instance in tests.
type ctrbcFake struct {
	sender    party.ID
	receivers []*acss.Receiver
}

func (f *ctrbcFake) Send(instanceID uint64, payload []byte) error {
	for _, r := range f.receivers {
		if err := r.OnCTRBCDelivery(external.CTRBCDelivery{InstanceID: instanceID, Sender: f.sender, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}
func (f *ctrbcFake) Deliveries() <-chan external.CTRBCDelivery { return nil }

type avidFake struct {
	sender    party.ID
	receivers map[party.ID]*acss.Receiver
}

func (f *avidFake) Send(instanceID uint64, shares []external.AVIDShare) error {
	for _, s := range shares {
		if s.Payload == nil {
			continue
		}
		r, ok := f.receivers[s.Recipient]
		if !ok {
			continue
		}
		if err := r.OnAVIDDelivery(external.AVIDDelivery{InstanceID: instanceID, Sender: f.sender, Payload: s.Payload}); err != nil {
			return err
		}
	}
	return nil
}
func (f *avidFake) Deliveries() <-chan external.AVIDDelivery { return nil }

// raFake decides 1 the instant any vote arrives, modeling an honest RA
// quorum without implementing real Byzantine agreement.
type raFake struct {
	receivers []*acss.Receiver
	decided   map[uint64]bool
}

func (f *raFake) Vote(instance uint64, dealer party.ID, value uint8) error {
	if f.decided == nil {
		f.decided = make(map[uint64]bool)
	}
	if f.decided[instance] {
		return nil
	}
	f.decided[instance] = true
	for _, r := range f.receivers {
		if err := r.OnRADecision(external.RADecision{Instance: instance, Dealer: dealer, Value: value}); err != nil {
			return err
		}
	}
	return nil
}
func (f *raFake) Decisions() <-chan external.RADecision { return nil }

func sharedSecret(a, b party.ID) []byte {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	d := hashutil.Sum("test-pairwise", []byte{byte(lo), byte(lo >> 8)}, []byte{byte(hi), byte(hi >> 8)})
	return d[:]
}

func buildCluster(t *testing.T, n, faults int) ([]*config.Config, *raFake, []*acss.Receiver) {
	t.Helper()
	var cfgs []*config.Config
	var receivers []*acss.Receiver
	ra := &raFake{}
	receiverByID := make(map[party.ID]*acss.Receiver, n)
	for i := 0; i < n; i++ {
		keys := make(map[party.ID]string)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			keys[party.ID(j)] = hex(sharedSecret(party.ID(i), party.ID(j)))
		}
		cfg := &config.Config{
			NumNodes:                      n,
			MyID:                          party.ID(i),
			NumFaults:                     faults,
			PerBatch:                      2,
			TotBatches:                    1,
			MaxDepth:                      1,
			DelinearizationDepth:          0,
			CompressionFactor:             2,
			MultiplicationSwitchThreshold: n,
			OutputMaskSize:                1,
			PairwiseKeysHex:               keys,
		}
		require.NoError(t, cfg.Validate())
		table, err := cfg.PairwiseTable()
		require.NoError(t, err)
		r := acss.NewReceiver(cfg, table, ra)
		cfgs = append(cfgs, cfg)
		receivers = append(receivers, r)
		receiverByID[party.ID(i)] = r
	}
	ra.receivers = receivers
	_ = receiverByID
	return cfgs, ra, receivers
}

func hex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

func TestACSSDealCompletesForHonestDealer(t *testing.T) {
	n, faults := 4, 1
	cfgs, _, receivers := buildCluster(t, n, faults)

	dealerCfg := cfgs[0]
	dealerTable, err := dealerCfg.PairwiseTable()
	require.NoError(t, err)

	ctrbc := &ctrbcFake{sender: dealerCfg.MyID, receivers: receivers}
	byID := make(map[party.ID]*acss.Receiver, n)
	for i, r := range receivers {
		byID[party.ID(i)] = r
	}
	avid := &avidFake{sender: dealerCfg.MyID, receivers: byID}

	dealer := acss.NewDealer(dealerCfg, dealerTable, ctrbc, avid)
	secrets := []field.Element{field.FromUint64(11), field.FromUint64(22)}
	require.NoError(t, dealer.Deal(7, secrets, rand.Reader))

	perSecretShares := make([][]field.Element, len(secrets))
	for i := range perSecretShares {
		perSecretShares[i] = make([]field.Element, n)
	}
	for i, r := range receivers {
		select {
		case c := <-r.Completions():
			require.Equal(t, party.ID(0), c.Dealer)
			require.Equal(t, uint64(7), c.Batch)
			require.Len(t, c.Shares, 2)
			for k, sh := range c.Shares {
				perSecretShares[k][i] = sh
			}
		default:
			t.Fatalf("party %d: expected a completion", i)
		}
	}

	// Every completed share must actually interpolate back to the dealt
	// secret under this codebase's x=id+1 evaluation convention -- a
	// mismatched convention anywhere in the dealing/verification path
	// would pass the length/dealer/batch checks above while still
	// reconstructing garbage.
	for k, secret := range secrets {
		xs := make([]field.Element, n)
		for i := 0; i < n; i++ {
			xs[i] = field.FromUint64(uint64(i) + 1)
		}
		recovered, err := sharecodec.InterpolateAtZero(xs[:faults+1], perSecretShares[k][:faults+1])
		require.NoError(t, err)
		require.True(t, recovered.Equal(secret), "secret %d reconstructed to wrong value", k)
	}
}

func TestACSSRejectsTamperedShare(t *testing.T) {
	n, faults := 4, 1
	cfgs, _, receivers := buildCluster(t, n, faults)
	dealerCfg := cfgs[0]
	dealerTable, err := dealerCfg.PairwiseTable()
	require.NoError(t, err)

	ctrbc := &ctrbcFake{sender: dealerCfg.MyID, receivers: receivers}
	byID := make(map[party.ID]*acss.Receiver, n)
	for i, r := range receivers {
		byID[party.ID(i)] = r
	}
	tamperTarget := party.ID(3)
	avid := &tamperingAVID{inner: &avidFake{sender: dealerCfg.MyID, receivers: byID}, victim: tamperTarget}

	dealer := acss.NewDealer(dealerCfg, dealerTable, ctrbc, avid)
	secrets := []field.Element{field.FromUint64(5)}
	require.NoError(t, dealer.Deal(9, secrets, rand.Reader))

	select {
	case <-receivers[tamperTarget].Completions():
		t.Fatal("tampered recipient should never see a completion")
	default:
	}
	for i, r := range receivers {
		if party.ID(i) == tamperTarget {
			continue
		}
		select {
		case <-r.Completions():
		default:
			t.Fatalf("honest party %d should still complete", i)
		}
	}
}

// tamperingAVID flips one byte of the ciphertext bound for victim,
// simulating a corrupted delivery for the ACSS receiver's rejection path.
type tamperingAVID struct {
	inner  *avidFake
	victim party.ID
}

func (t *tamperingAVID) Send(instanceID uint64, shares []external.AVIDShare) error {
	mutated := make([]external.AVIDShare, len(shares))
	copy(mutated, shares)
	for i, s := range mutated {
		if s.Recipient == t.victim && s.Payload != nil {
			corrupt := append([]byte(nil), s.Payload...)
			corrupt[len(corrupt)-1] ^= 0xFF
			mutated[i].Payload = corrupt
		}
	}
	return t.inner.Send(instanceID, mutated)
}
func (t *tamperingAVID) Deliveries() <-chan external.AVIDDelivery { return nil }
