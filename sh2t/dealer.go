package sh2t

import (
	"fmt"
	"io"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/external"
	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/pairwise"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// Dealer deals degree-2t Sh2t batches (§4.3). Preprocessing always
// calls Deal with K zeros, yielding fresh 2t-sharings of zero for the
// O-queue, but Deal is written against an arbitrary secret vector since
// nothing about the dealing logic depends on the secrets being zero.
type Dealer struct {
	cfg   *config.Config
	keys  *pairwise.Table
	ctrbc external.CTRBC
	avid  external.AVID
}

// NewDealer builds a Dealer bound to this party's transport handles.
func NewDealer(cfg *config.Config, keys *pairwise.Table, ctrbc external.CTRBC, avid external.AVID) *Dealer {
	return &Dealer{cfg: cfg, keys: keys, ctrbc: ctrbc, avid: avid}
}

// degree returns the Sh2t sharing degree, 2t.
func (d *Dealer) degree() int { return 2 * d.cfg.Threshold() }

// Deal shares K secrets as degree-2t sharings for the given batch.
func (d *Dealer) Deal(batch uint64, secrets []field.Element, rng io.Reader) error {
	n := d.cfg.NumNodes
	degree := d.degree()
	basis := d.cfg.Basis()

	var roots []field.Element
	if basis == sharecodec.BasisFFT {
		gen, err := d.cfg.FFTGenerator()
		if err != nil {
			return fmt.Errorf("sh2t: resolving FFT generator: %w", err)
		}
		roots, err = sharecodec.Roots(n, gen)
		if err != nil {
			return fmt.Errorf("sh2t: computing FFT roots: %w", err)
		}
	}

	keyerFor := func(receiver party.ID) (*pairwise.StreamKeyer, error) {
		k, err := d.keys.KeyWith(receiver)
		if err != nil {
			return nil, err
		}
		return pairwise.NewStreamKeyer(k), nil
	}

	dealOne := func(label []byte, secret field.Element) ([]field.Element, error) {
		if basis == sharecodec.BasisFFT {
			_, shares, err := sharecodec.DealFFT(degree, secret, roots, rng)
			return shares, err
		}
		_, shares, err := sharecodec.DealPRF(degree, secret, n, keyerFor, label, pairwise.TagShare)
		return shares, err
	}

	k := len(secrets)
	secretShares := make([][]field.Element, k)
	for i, s := range secrets {
		shares, err := dealOne(secretLabel(batch, i), s)
		if err != nil {
			return fmt.Errorf("sh2t: dealing secret %d: %w", i, err)
		}
		secretShares[i] = shares
	}

	nonceSecret, err := field.Random(rng)
	if err != nil {
		return fmt.Errorf("sh2t: sampling nonce: %w", err)
	}
	nonceShares, err := dealOne(nonceLabel(batch), nonceSecret)
	if err != nil {
		return fmt.Errorf("sh2t: dealing nonce: %w", err)
	}

	shareCommitments := make([]hashutil.Digest, n)
	for i := 0; i < n; i++ {
		partyShares := make([]field.Element, k)
		for j := 0; j < k; j++ {
			partyShares[j] = secretShares[j][i]
		}
		shareCommitments[i] = hashutil.ShareCommitment(partyShares, nonceShares[i])
	}

	transcriptBytes, err := encodeTranscript(shareCommitments, k)
	if err != nil {
		return fmt.Errorf("sh2t: encoding transcript: %w", err)
	}
	if err := d.ctrbc.Send(batch, transcriptBytes); err != nil {
		return fmt.Errorf("sh2t: broadcasting transcript: %w", err)
	}

	avidShares := make([]external.AVIDShare, 0, n)
	for i := 0; i < n; i++ {
		recipient := party.ID(i)
		if basis != sharecodec.BasisFFT && i < degree {
			avidShares = append(avidShares, external.AVIDShare{Recipient: recipient, Payload: nil})
			continue
		}
		partyShares := make([]field.Element, k)
		for j := 0; j < k; j++ {
			partyShares[j] = secretShares[j][i]
		}
		plaintext, err := encodePacket(partyShares, nonceShares[i])
		if err != nil {
			return fmt.Errorf("sh2t: encoding packet for party %d: %w", i, err)
		}
		keyer, err := keyerFor(recipient)
		if err != nil {
			return fmt.Errorf("sh2t: resolving key for party %d: %w", i, err)
		}
		ciphertext, err := encryptPacket(keyer, batch, plaintext)
		if err != nil {
			return fmt.Errorf("sh2t: encrypting packet for party %d: %w", i, err)
		}
		avidShares = append(avidShares, external.AVIDShare{Recipient: recipient, Payload: ciphertext})
	}
	if err := d.avid.Send(batch, avidShares); err != nil {
		return fmt.Errorf("sh2t: dispersing packets: %w", err)
	}
	return nil
}
