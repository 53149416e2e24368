package sh2t_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sh2t"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

type ctrbcFake struct {
	sender    party.ID
	receivers []*sh2t.Receiver
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
	receivers map[party.ID]*sh2t.Receiver
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

type raFake struct {
	receivers []*sh2t.Receiver
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

func hexEnc(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

// n=7, t=2 so the Sh2t degree is 4, exercising both the PRF local-
// reconstruction path (ids 0..3) and the AVID-delivered path (ids 4..6).
func buildCluster(t *testing.T, n, faults int) ([]*config.Config, *raFake, []*sh2t.Receiver) {
	t.Helper()
	var cfgs []*config.Config
	var receivers []*sh2t.Receiver
	ra := &raFake{}
	for i := 0; i < n; i++ {
		keys := make(map[party.ID]string)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			keys[party.ID(j)] = hexEnc(sharedSecret(party.ID(i), party.ID(j)))
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
		r := sh2t.NewReceiver(cfg, table, ra)
		cfgs = append(cfgs, cfg)
		receivers = append(receivers, r)
	}
	ra.receivers = receivers
	return cfgs, ra, receivers
}

func TestSh2tDealOfZeroCompletesForHonestDealer(t *testing.T) {
	n, faults := 7, 2
	cfgs, _, receivers := buildCluster(t, n, faults)

	dealerCfg := cfgs[0]
	dealerTable, err := dealerCfg.PairwiseTable()
	require.NoError(t, err)

	ctrbc := &ctrbcFake{sender: dealerCfg.MyID, receivers: receivers}
	byID := make(map[party.ID]*sh2t.Receiver, n)
	for i, r := range receivers {
		byID[party.ID(i)] = r
	}
	avid := &avidFake{sender: dealerCfg.MyID, receivers: byID}

	dealer := sh2t.NewDealer(dealerCfg, dealerTable, ctrbc, avid)
	secrets := []field.Element{field.FromUint64(17), field.Zero()}
	require.NoError(t, dealer.Deal(3, secrets, rand.Reader))

	perSecretShares := make([][]field.Element, len(secrets))
	for i := range perSecretShares {
		perSecretShares[i] = make([]field.Element, n)
	}
	for i, r := range receivers {
		select {
		case c := <-r.Completions():
			require.Equal(t, party.ID(0), c.Dealer)
			require.Len(t, c.Shares, 2)
			for k, sh := range c.Shares {
				perSecretShares[k][i] = sh
			}
		default:
			t.Fatalf("party %d: expected a completion", i)
		}
	}

	// The Sh2t sharing is degree 2t; reconstructing from 2t+1 shares
	// under the codebase's x=id+1 convention must recover the dealt
	// secret, not just pass the length/dealer checks above.
	degree := 2 * faults
	xs := make([]field.Element, n)
	for i := 0; i < n; i++ {
		xs[i] = field.FromUint64(uint64(i) + 1)
	}
	for k, secret := range secrets {
		recovered, err := sharecodec.InterpolateAtZero(xs[:degree+1], perSecretShares[k][:degree+1])
		require.NoError(t, err)
		require.True(t, recovered.Equal(secret), "secret %d reconstructed to wrong value", k)
	}
}
