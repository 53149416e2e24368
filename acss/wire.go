// Package acss implements ACSS-AB: the asynchronous complete secret
// sharing protocol with a distributed zero-knowledge (DZK) binding
// argument (§4.2). A Dealer deals a batch of K secrets as K degree-t
// Shamir sharings plus a nonce, a blinding polynomial and its nonce;
// every Receiver verifies its own share against a publicly broadcast
// commitment vector and DZK polynomial before voting in the RA
// primitive, which alone gates termination.
//
// The state-machine shape here is grounded on the IVSS dealer/receiver
// split in poneciak57-async-agreement-protocol's services/ivss.go:
// broadcast-commit, then per-recipient verify, then vote into agreement.
package acss

import (
	"encoding/binary"
	"fmt"

	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/pairwise"
	"github.com/akhilsb/velox-mpc/sharecodec"
	"github.com/akhilsb/velox-mpc/wire"
)

// wireTranscript is the CTRBC-broadcast tuple of §4.2 step 8:
// (C_1..C_n, B_1..B_n, Q-coeffs, K).
type wireTranscript struct {
	ShareCommitments [][]byte
	BlindCommitments [][]byte
	DZKCoeffs        [][]byte
	K                int
}

// parsedTranscript is wireTranscript decoded into usable types.
type parsedTranscript struct {
	ShareCommitments []hashutil.Digest
	BlindCommitments []hashutil.Digest
	Q                *sharecodec.Polynomial
	K                int
}

func encodeTranscript(shareC, blindC []hashutil.Digest, q *sharecodec.Polynomial, k int) ([]byte, error) {
	wt := wireTranscript{
		ShareCommitments: digestsToBytes(shareC),
		BlindCommitments: digestsToBytes(blindC),
		DZKCoeffs:        elementsToBytes(q.Coeffs),
		K:                k,
	}
	return wire.Marshal(&wt)
}

func decodeTranscript(b []byte) (*parsedTranscript, error) {
	var wt wireTranscript
	if err := wire.Unmarshal(b, &wt); err != nil {
		return nil, fmt.Errorf("acss: decoding transcript: %w", err)
	}
	shareC, err := bytesToDigests(wt.ShareCommitments)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding share commitments: %w", err)
	}
	blindC, err := bytesToDigests(wt.BlindCommitments)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding blinding commitments: %w", err)
	}
	coeffs, err := bytesToElements(wt.DZKCoeffs)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding DZK coefficients: %w", err)
	}
	return &parsedTranscript{
		ShareCommitments: shareC,
		BlindCommitments: blindC,
		Q:                &sharecodec.Polynomial{Coeffs: coeffs},
		K:                wt.K,
	}, nil
}

// wirePacket is the per-recipient Party Share Packet of §4.2 step 9,
// dispersed through AVID after pairwise encryption.
type wirePacket struct {
	Shares             [][]byte
	NonceShare         []byte
	BlindingNonceShare []byte
}

type parsedPacket struct {
	Shares             []field.Element
	NonceShare         field.Element
	BlindingNonceShare field.Element
}

func encodePacket(shares []field.Element, nonceShare, blindingNonceShare field.Element) ([]byte, error) {
	wp := wirePacket{
		Shares:             elementsToBytes(shares),
		NonceShare:         nonceShare.Bytes(),
		BlindingNonceShare: blindingNonceShare.Bytes(),
	}
	return wire.Marshal(&wp)
}

func decodePacket(b []byte) (*parsedPacket, error) {
	var wp wirePacket
	if err := wire.Unmarshal(b, &wp); err != nil {
		return nil, fmt.Errorf("acss: decoding party share packet: %w", err)
	}
	shares, err := bytesToElements(wp.Shares)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding packet shares: %w", err)
	}
	nonceShare, err := field.FromBytes(wp.NonceShare)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding packet nonce share: %w", err)
	}
	blindNonceShare, err := field.FromBytes(wp.BlindingNonceShare)
	if err != nil {
		return nil, fmt.Errorf("acss: decoding packet blinding nonce share: %w", err)
	}
	return &parsedPacket{Shares: shares, NonceShare: nonceShare, BlindingNonceShare: blindNonceShare}, nil
}

func digestsToBytes(ds []hashutil.Digest) [][]byte {
	out := make([][]byte, len(ds))
	for i, d := range ds {
		cp := d
		out[i] = cp[:]
	}
	return out
}

func bytesToDigests(bs [][]byte) ([]hashutil.Digest, error) {
	out := make([]hashutil.Digest, len(bs))
	for i, b := range bs {
		if len(b) != 32 {
			return nil, fmt.Errorf("digest %d has length %d, want 32", i, len(b))
		}
		copy(out[i][:], b)
	}
	return out, nil
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
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// Labels derive the per-purpose PRF/HKDF instance labels from a batch
// number, so every sharing dealt within a batch (K secrets, nonce,
// blinding poly, blinding nonce, packet encryption) uses an
// independent keystream even though the pairwise secret is shared.

func batchLabel(batch uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], batch)
	return b[:]
}

func secretLabel(batch uint64, k int) []byte {
	return append(batchLabel(batch), []byte(fmt.Sprintf("/s%d", k))...)
}

func nonceLabel(batch uint64) []byte {
	return append(batchLabel(batch), []byte("/nonce")...)
}

func blindingLabel(batch uint64) []byte {
	return append(batchLabel(batch), []byte("/blind")...)
}

func blindingNonceLabel(batch uint64) []byte {
	return append(batchLabel(batch), []byte("/blind-nonce")...)
}

func packetLabel(batch uint64) []byte {
	return append(batchLabel(batch), []byte("/pkt")...)
}

// encryptPacket and decryptPacket XOR a CBOR-encoded packet against a
// ChaCha20 keystream derived from the dealer-receiver pairwise secret,
// distinct from the share-derivation streams by virtue of packetLabel
// never colliding with a secretLabel/nonceLabel/blindingLabel (§6:
// "encrypted under the pairwise key").
func encryptPacket(keyer *pairwise.StreamKeyer, batch uint64, plaintext []byte) ([]byte, error) {
	return xorStream(keyer, packetLabel(batch), plaintext)
}

func decryptPacket(keyer *pairwise.StreamKeyer, batch uint64, ciphertext []byte) ([]byte, error) {
	return xorStream(keyer, packetLabel(batch), ciphertext)
}

func xorStream(keyer *pairwise.StreamKeyer, label []byte, data []byte) ([]byte, error) {
	r, err := keyer.Stream(label, pairwise.TagShare)
	if err != nil {
		return nil, fmt.Errorf("acss: deriving packet keystream: %w", err)
	}
	ks := make([]byte, len(data))
	n := 0
	for n < len(ks) {
		m, err := r.Read(ks[n:])
		if err != nil {
			return nil, fmt.Errorf("acss: reading packet keystream: %w", err)
		}
		n += m
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i]
	}
	return out, nil
}
