// Package pairwise manages the per-pair secret-key table (§5: "only the
// pair-wise secret-key table and a keyed AES hasher are process-wide and
// immutable after init") and the PRF derivation used by ShareCodec's
// algebraic sharing mode (§4.1, §9).
package pairwise

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/party"
)

func newSHA256() hash.Hash { return sha256.New() }

// Tag is the per-polynomial stream tag byte, with values for the four
// polynomial kinds of §9: 0=share, 1=nonce, 2=blinding,
// 3=blinding-nonce. The acss and sh2t dealers and receivers pass
// TagShare for every polynomial and for packet encryption; their
// streams are kept apart by distinct instance labels, not by tag.
type Tag byte

const (
	TagShare         Tag = 0
	TagNonce         Tag = 1
	TagBlinding      Tag = 2
	TagBlindingNonce Tag = 3
)

// Table holds the pairwise secret keys for this party, one per peer.
// Built once at process init and never mutated afterward.
type Table struct {
	selfID party.ID
	keys   map[party.ID][]byte
}

// NewTable builds a Table from a raw key map (as loaded from config).
func NewTable(selfID party.ID, keys map[party.ID][]byte) *Table {
	cp := make(map[party.ID][]byte, len(keys))
	for id, k := range keys {
		cp[id] = append([]byte(nil), k...)
	}
	return &Table{selfID: selfID, keys: cp}
}

// KeyWith returns the raw shared secret between this party and peer.
func (t *Table) KeyWith(peer party.ID) ([]byte, error) {
	k, ok := t.keys[peer]
	if !ok {
		return nil, fmt.Errorf("pairwise: no shared key with party %s", peer)
	}
	return k, nil
}

// StreamKeyer derives a deterministic ChaCha20 keystream from a pairwise
// secret, a dealer instance tag (dealer id, batch index, polynomial
// index) and a nonce Tag, per §4.1's "H(sk_i || nonce-tag)" and §9's
// canonical derivation requirement.
type StreamKeyer struct {
	sharedSecret []byte
}

// NewStreamKeyer wraps a pairwise secret for repeated derivation.
func NewStreamKeyer(sharedSecret []byte) *StreamKeyer {
	return &StreamKeyer{sharedSecret: sharedSecret}
}

// Stream returns a reader over the keystream for (instanceLabel, tag).
// Both dealer and receiver call this identically, so the first t (or
// 2t) evaluation points of a polynomial can be recomputed locally
// without ever being sent (§4.1's "complete" sharing).
func (k *StreamKeyer) Stream(instanceLabel []byte, tag Tag) (io.Reader, error) {
	info := append(append([]byte{}, instanceLabel...), byte(tag))
	hk := hkdf.New(newSHA256, k.sharedSecret, nil, info)

	chachaKey := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(hk, chachaKey); err != nil {
		return nil, fmt.Errorf("pairwise: deriving stream key: %w", err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, nonce)
	if err != nil {
		return nil, fmt.Errorf("pairwise: constructing cipher: %w", err)
	}
	return &cipherReader{cipher: cipher}, nil
}

// ElementAt derives the n-th field element of the (instanceLabel, tag)
// stream, used to fix deterministic polynomial evaluation points
// without materializing the whole stream up front.
func (k *StreamKeyer) ElementAt(instanceLabel []byte, tag Tag, n int) (field.Element, error) {
	r, err := k.Stream(instanceLabel, tag)
	if err != nil {
		return field.Element{}, err
	}
	buf := make([]byte, 32)
	for i := 0; i <= n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return field.Element{}, fmt.Errorf("pairwise: reading stream element %d: %w", n, err)
		}
	}
	return field.FromBytes(buf)
}

// cipherReader adapts ChaCha20's keystream to an io.Reader by
// encrypting a zero buffer, which yields the raw keystream bytes.
type cipherReader struct {
	cipher *chacha20.Cipher
}

func (c *cipherReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	c.cipher.XORKeyStream(p, p)
	return len(p), nil
}
