package acss

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

// Dealer deals ACSS-AB batches on behalf of this party (§4.2 "Dealer").
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

// Deal shares K secrets for the given batch number, broadcasting the
// commitment/DZK transcript via CTRBC and dispersing per-party share
// packets via AVID (§4.2 steps 1-9).
func (d *Dealer) Deal(batch uint64, secrets []field.Element, rng io.Reader) error {
	n := d.cfg.NumNodes
	t := d.cfg.Threshold()
	basis := d.cfg.Basis()

	var roots []field.Element
	if basis == sharecodec.BasisFFT {
		gen, err := d.cfg.FFTGenerator()
		if err != nil {
			return fmt.Errorf("acss: resolving FFT generator: %w", err)
		}
		roots, err = sharecodec.Roots(n, gen)
		if err != nil {
			return fmt.Errorf("acss: computing FFT roots: %w", err)
		}
	}

	keyerFor := func(receiver party.ID) (*pairwise.StreamKeyer, error) {
		k, err := d.keys.KeyWith(receiver)
		if err != nil {
			return nil, err
		}
		return pairwise.NewStreamKeyer(k), nil
	}

	dealOne := func(label []byte, secret field.Element) (*sharecodec.Polynomial, []field.Element, error) {
		if basis == sharecodec.BasisFFT {
			return sharecodec.DealFFT(t, secret, roots, rng)
		}
		return sharecodec.DealPRF(t, secret, n, keyerFor, label, pairwise.TagShare)
	}

	k := len(secrets)
	secretPolys := make([]*sharecodec.Polynomial, k)
	secretShares := make([][]field.Element, k) // secretShares[idx][party]
	for i, s := range secrets {
		poly, shares, err := dealOne(secretLabel(batch, i), s)
		if err != nil {
			return fmt.Errorf("acss: dealing secret %d: %w", i, err)
		}
		secretPolys[i] = poly
		secretShares[i] = shares
	}

	nonceSecret, err := field.Random(rng)
	if err != nil {
		return fmt.Errorf("acss: sampling nonce: %w", err)
	}
	_, nonceShares, err := dealOne(nonceLabel(batch), nonceSecret)
	if err != nil {
		return fmt.Errorf("acss: dealing nonce: %w", err)
	}

	blindSecret, err := field.Random(rng)
	if err != nil {
		return fmt.Errorf("acss: sampling blinding secret: %w", err)
	}
	blindPoly, blindShares, err := dealOne(blindingLabel(batch), blindSecret)
	if err != nil {
		return fmt.Errorf("acss: dealing blinding polynomial: %w", err)
	}

	blindNonceSecret, err := field.Random(rng)
	if err != nil {
		return fmt.Errorf("acss: sampling blinding nonce: %w", err)
	}
	_, blindNonceShares, err := dealOne(blindingNonceLabel(batch), blindNonceSecret)
	if err != nil {
		return fmt.Errorf("acss: dealing blinding nonce: %w", err)
	}

	shareCommitments := make([]hashutil.Digest, n)
	blindCommitments := make([]hashutil.Digest, n)
	for i := 0; i < n; i++ {
		partyShares := make([]field.Element, k)
		for j := 0; j < k; j++ {
			partyShares[j] = secretShares[j][i]
		}
		shareCommitments[i] = hashutil.ShareCommitment(partyShares, nonceShares[i])
		blindCommitments[i] = hashutil.BlindingCommitment(blindShares[i], blindNonceShares[i])
	}
	rootShare := hashutil.MerkleRoot(shareCommitments)
	rootBlind := hashutil.MerkleRoot(blindCommitments)
	r := hashutil.ChallengeScalar(rootShare, rootBlind)

	q := blindPoly
	for i, p := range secretPolys {
		coeff := r.Pow(uint64(i + 1))
		q = q.Add(p.ScalarMul(coeff))
	}

	transcriptBytes, err := encodeTranscript(shareCommitments, blindCommitments, q, k)
	if err != nil {
		return fmt.Errorf("acss: encoding transcript: %w", err)
	}
	if err := d.ctrbc.Send(batch, transcriptBytes); err != nil {
		return fmt.Errorf("acss: broadcasting transcript: %w", err)
	}

	avidShares := make([]external.AVIDShare, 0, n)
	for i := 0; i < n; i++ {
		recipient := party.ID(i)
		if basis != sharecodec.BasisFFT && i < t {
			// PRF mode: recipients at id < t reconstruct locally,
			// so no packet is dispersed (§4.2 step 9, §4.1).
			avidShares = append(avidShares, external.AVIDShare{Recipient: recipient, Payload: nil})
			continue
		}
		partyShares := make([]field.Element, k)
		for j := 0; j < k; j++ {
			partyShares[j] = secretShares[j][i]
		}
		plaintext, err := encodePacket(partyShares, nonceShares[i], blindNonceShares[i])
		if err != nil {
			return fmt.Errorf("acss: encoding packet for party %d: %w", i, err)
		}
		keyer, err := keyerFor(recipient)
		if err != nil {
			return fmt.Errorf("acss: resolving key for party %d: %w", i, err)
		}
		ciphertext, err := encryptPacket(keyer, batch, plaintext)
		if err != nil {
			return fmt.Errorf("acss: encrypting packet for party %d: %w", i, err)
		}
		avidShares = append(avidShares, external.AVIDShare{Recipient: recipient, Payload: ciphertext})
	}
	if err := d.avid.Send(batch, avidShares); err != nil {
		return fmt.Errorf("acss: dispersing packets: %w", err)
	}
	return nil
}
