package commoncoin_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akhilsb/velox-mpc/commoncoin"
	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/queue"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// fanoutCTRBC delivers every Send synchronously to every coin instance;
// a single flip never triggers a re-broadcast, so there is no
// reentrancy hazard here unlike the multiplication engine's hash round.
type fanoutCTRBC struct {
	sender party.ID
	coins  []*commoncoin.Coin
}

func (f *fanoutCTRBC) Send(instanceID uint64, payload []byte) error {
	for _, c := range f.coins {
		if err := c.OnCTRBCDelivery(external.CTRBCDelivery{InstanceID: instanceID, Sender: f.sender, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}
func (f *fanoutCTRBC) Deliveries() <-chan external.CTRBCDelivery { return nil }

// TestCoinUnbiasedReconstruction runs §8 scenario 4: n=4 parties share
// a pre-agreed field element 42; once t+1 honest flips are broadcast,
// every party reconstructs the same value.
func TestCoinUnbiasedReconstruction(t *testing.T) {
	n, faults := 4, 1
	secret := field.FromUint64(42)
	poly, err := sharecodec.NewRandomPolynomial(faults, secret, rand.Reader)
	require.NoError(t, err)

	coins := make([]*commoncoin.Coin, n)
	for i := 0; i < n; i++ {
		cfg := &config.Config{
			NumNodes: n, MyID: party.ID(i), NumFaults: faults,
			PerBatch: 1, TotBatches: 1, CompressionFactor: 2,
			MultiplicationSwitchThreshold: n, OutputMaskSize: 1,
		}
		q := queue.New[field.Element]()
		q.Push(poly.Evaluate(field.FromUint64(uint64(i + 1))))
		ctrbc := &fanoutCTRBC{sender: party.ID(i), coins: coins}
		coins[i] = commoncoin.New(cfg, ctrbc, q)
	}

	for i := 0; i < n; i++ {
		require.NoError(t, coins[i].Flip(5))
	}

	for i, c := range coins {
		select {
		case v := <-c.Result(5):
			require.True(t, v.Equal(secret), "party %d", i)
		default:
			t.Fatalf("party %d: expected coin result", i)
		}
	}
}
