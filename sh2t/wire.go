// Package sh2t implements Sh2t, the degree-2t counterpart to ACSS-AB
// used for the O-queue's fresh 2t-sharings of zero (§4.3): "Identical
// to ACSS-AB with: no DZK argument, no blinding polynomial ...
// verification = share-commitment recomputation only." The dealer and
// receiver here are a deliberate simplification of acss.Dealer/
// acss.Receiver with the DZK/blinding machinery removed.
package sh2t

import (
	"encoding/binary"
	"fmt"

	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/hashutil"
	"github.com/akhilsb/velox-mpc/pairwise"
	"github.com/akhilsb/velox-mpc/wire"
)

type wireTranscript struct {
	ShareCommitments [][]byte
	K                int
}

type parsedTranscript struct {
	ShareCommitments []hashutil.Digest
	K                int
}

func encodeTranscript(shareC []hashutil.Digest, k int) ([]byte, error) {
	wt := wireTranscript{ShareCommitments: digestsToBytes(shareC), K: k}
	return wire.Marshal(&wt)
}

func decodeTranscript(b []byte) (*parsedTranscript, error) {
	var wt wireTranscript
	if err := wire.Unmarshal(b, &wt); err != nil {
		return nil, fmt.Errorf("sh2t: decoding transcript: %w", err)
	}
	shareC, err := bytesToDigests(wt.ShareCommitments)
	if err != nil {
		return nil, fmt.Errorf("sh2t: decoding share commitments: %w", err)
	}
	return &parsedTranscript{ShareCommitments: shareC, K: wt.K}, nil
}

type wirePacket struct {
	Shares     [][]byte
	NonceShare []byte
}

type parsedPacket struct {
	Shares     []field.Element
	NonceShare field.Element
}

func encodePacket(shares []field.Element, nonceShare field.Element) ([]byte, error) {
	wp := wirePacket{Shares: elementsToBytes(shares), NonceShare: nonceShare.Bytes()}
	return wire.Marshal(&wp)
}

func decodePacket(b []byte) (*parsedPacket, error) {
	var wp wirePacket
	if err := wire.Unmarshal(b, &wp); err != nil {
		return nil, fmt.Errorf("sh2t: decoding party share packet: %w", err)
	}
	shares, err := bytesToElements(wp.Shares)
	if err != nil {
		return nil, fmt.Errorf("sh2t: decoding packet shares: %w", err)
	}
	nonceShare, err := field.FromBytes(wp.NonceShare)
	if err != nil {
		return nil, fmt.Errorf("sh2t: decoding packet nonce share: %w", err)
	}
	return &parsedPacket{Shares: shares, NonceShare: nonceShare}, nil
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

func packetLabel(batch uint64) []byte {
	return append(batchLabel(batch), []byte("/pkt")...)
}

func encryptPacket(keyer *pairwise.StreamKeyer, batch uint64, plaintext []byte) ([]byte, error) {
	return xorStream(keyer, packetLabel(batch), plaintext)
}

func decryptPacket(keyer *pairwise.StreamKeyer, batch uint64, ciphertext []byte) ([]byte, error) {
	return xorStream(keyer, packetLabel(batch), ciphertext)
}

func xorStream(keyer *pairwise.StreamKeyer, label []byte, data []byte) ([]byte, error) {
	r, err := keyer.Stream(label, pairwise.TagShare)
	if err != nil {
		return nil, fmt.Errorf("sh2t: deriving packet keystream: %w", err)
	}
	ks := make([]byte, len(data))
	n := 0
	for n < len(ks) {
		m, err := r.Read(ks[n:])
		if err != nil {
			return nil, fmt.Errorf("sh2t: reading packet keystream: %w", err)
		}
		n += m
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i]
	}
	return out, nil
}
