// Package hashutil wraps blake3 for the protocol's commitment hashes,
// Merkle roots, and DZK challenge derivation (§4.1, §4.2). blake3 is the
// teacher's own hash of choice for exactly this kind of domain-separated
// commitment hashing (see protocols/frost/sign/round1.go).
package hashutil

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/akhilsb/velox-mpc/field"
)

// Digest is a fixed-size blake3 output.
type Digest [32]byte

// Sum hashes a domain tag followed by an arbitrary number of byte
// strings, each length-prefixed so no ambiguity can arise from
// concatenation (§6: "length-prefixed binary serialization").
func Sum(domain string, parts ...[]byte) Digest {
	h := blake3.New()
	_, _ = h.Write([]byte(domain))
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// ShareCommitment computes C_i = H(share_i || nonce-share_i) (§4.2 step 4).
func ShareCommitment(shares []field.Element, nonceShare field.Element) Digest {
	parts := make([][]byte, 0, len(shares)+1)
	for _, s := range shares {
		parts = append(parts, s.Bytes())
	}
	parts = append(parts, nonceShare.Bytes())
	return Sum("velox-mpc/share-commitment", parts...)
}

// BlindingCommitment computes B_i = H(blinding-share_i || blinding-nonce_i)
// (§4.2 step 5).
func BlindingCommitment(blindingShare, blindingNonce field.Element) Digest {
	return Sum("velox-mpc/blinding-commitment", blindingShare.Bytes(), blindingNonce.Bytes())
}

// ChallengeScalar derives r = H(R_share || R_blind) interpreted as a
// field element (§4.2 step 6).
func ChallengeScalar(rootShare, rootBlind Digest) field.Element {
	d := Sum("velox-mpc/dzk-challenge", rootShare[:], rootBlind[:])
	e, err := field.FromBytes(pad32(d[:]))
	if err != nil {
		// Sum always returns 32 bytes; pad32 always returns 32 bytes.
		panic(err)
	}
	return e
}

func pad32(b []byte) []byte {
	if len(b) == 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// MerkleRoot computes a simple binary Merkle root over an ordered
// sequence of leaves, duplicating the final leaf when the level has an
// odd count (the standard Bitcoin-style convention; adequate here since
// the tree is only ever used for a public collision-resistant binding,
// never for inclusion proofs against an adversarial prover of unknown
// leaf count).
func MerkleRoot(leaves []Digest) Digest {
	if len(leaves) == 0 {
		return Sum("velox-mpc/merkle-empty")
	}
	level := make([]Digest, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Digest, len(level)/2)
		for i := range next {
			next[i] = Sum("velox-mpc/merkle-node", level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}
