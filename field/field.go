// Package field implements the prime-field arithmetic the protocol's
// Shamir sharings live over (spec §3: "a prime-field scalar (>= 250
// bits)"). Values are backed by saferith.Nat/Modulus, the same
// constant-time-biased big-integer primitives the teacher uses for its
// curve scalars, applied here directly to a 256-bit prime instead of a
// curve order.
package field

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
)

// byteLen is the fixed-width big-endian encoding length (§3).
const byteLen = 32

// modulus is a 256-bit prime, process-wide and immutable after init
// (§5: "the pair-wise secret-key table and a keyed AES hasher are
// process-wide and immutable after init" -- the field modulus is the
// same kind of fixed, shared constant).
//
// 2^256 - 189, a prime chosen for a clean, auditable constant rather
// than reuse of any curve's order.
var modulusNat = mustNat("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff43")
var modulus = saferith.ModulusFromNat(modulusNat)

// sqrtExponentBytes is (p+1)/4, valid since p ≡ 3 (mod 4) for the
// modulus above, used by Sqrt's single-exponentiation square root.
var sqrtExponentBytes = mustNat("3fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffd1").Bytes()

func mustNat(hexStr string) *saferith.Nat {
	n := new(saferith.Nat)
	bz := make([]byte, len(hexStr)/2)
	if _, err := fmt.Sscanf(hexStr, "%x", &bz); err != nil {
		panic(err)
	}
	return n.SetBytes(bz)
}

// Element is a single field value.
type Element struct {
	nat *saferith.Nat
}

// Zero returns the additive identity.
func Zero() Element { return Element{new(saferith.Nat).SetUint64(0)} }

// One returns the multiplicative identity.
func One() Element { return Element{new(saferith.Nat).SetUint64(1)} }

// FromUint64 lifts a small integer into the field.
func FromUint64(v uint64) Element {
	n := new(saferith.Nat).SetUint64(v)
	return Element{n.Mod(n, modulus)}
}

// FromBytes decodes a fixed-width big-endian encoding (§3).
func FromBytes(b []byte) (Element, error) {
	if len(b) != byteLen {
		return Element{}, fmt.Errorf("field: encoded element must be %d bytes, got %d", byteLen, len(b))
	}
	n := new(saferith.Nat).SetBytes(b)
	n.Mod(n, modulus)
	return Element{n}, nil
}

// Bytes encodes the element as a fixed-width big-endian byte string.
func (e Element) Bytes() []byte {
	b := e.nat.Bytes()
	if len(b) == byteLen {
		return b
	}
	out := make([]byte, byteLen)
	copy(out[byteLen-len(b):], b)
	return out
}

// Random samples a uniform field element from r.
func Random(r io.Reader) (Element, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, byteLen+16) // oversample to kill modulo bias
	if _, err := io.ReadFull(r, buf); err != nil {
		return Element{}, fmt.Errorf("field: sampling randomness: %w", err)
	}
	n := new(saferith.Nat).SetBytes(buf)
	n.Mod(n, modulus)
	return Element{n}, nil
}

// Add returns e + o mod p.
func (e Element) Add(o Element) Element {
	return Element{new(saferith.Nat).ModAdd(e.nat, o.nat, modulus)}
}

// Sub returns e - o mod p.
func (e Element) Sub(o Element) Element {
	return Element{new(saferith.Nat).ModSub(e.nat, o.nat, modulus)}
}

// Neg returns -e mod p.
func (e Element) Neg() Element {
	return Zero().Sub(e)
}

// Mul returns e * o mod p.
func (e Element) Mul(o Element) Element {
	return Element{new(saferith.Nat).ModMul(e.nat, o.nat, modulus)}
}

// Inverse returns e^-1 mod p. Panics on zero, matching the invariant
// that every caller of Inverse has already excluded zero (distinct
// nonzero evaluation points, nonzero Vandermonde denominators).
func (e Element) Inverse() Element {
	if e.IsZero() {
		panic("field: inverse of zero")
	}
	return Element{new(saferith.Nat).ModInverse(e.nat, modulus)}
}

// Pow returns e^k mod p for a small non-negative exponent, via
// repeated squaring.
func (e Element) Pow(k uint64) Element {
	result := One()
	base := e
	for k > 0 {
		if k&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		k >>= 1
	}
	return result
}

// PowBytes returns e raised to an arbitrarily large exponent given as
// a big-endian byte string, via right-to-left square-and-multiply.
// Pow is limited to uint64 exponents; this variant exists for Sqrt's
// (p+1)/4 exponent, which does not fit in one.
func (e Element) PowBytes(exponentBE []byte) Element {
	result := One()
	base := e
	for i := len(exponentBE) - 1; i >= 0; i-- {
		b := exponentBE[i]
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				result = result.Mul(base)
			}
			base = base.Mul(base)
		}
	}
	return result
}

// Sqrt returns a square root of e and true if one exists. The modulus
// is 3 (mod 4), so a candidate root is e^((p+1)/4); squaring it back
// and comparing to e distinguishes quadratic residues from
// non-residues (§C.1's double-and-square random-bit construction
// relies on this).
func (e Element) Sqrt() (Element, bool) {
	if e.IsZero() {
		return Zero(), true
	}
	cand := e.PowBytes(sqrtExponentBytes)
	if cand.Mul(cand).Equal(e) {
		return cand, true
	}
	return Element{}, false
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool {
	return e.nat.Eq(new(saferith.Nat).SetUint64(0)) == 1
}

// Equal reports value equality.
func (e Element) Equal(o Element) bool {
	return e.nat.Eq(o.nat) == 1
}

// String renders a short hex prefix, useful in log lines.
func (e Element) String() string {
	b := e.Bytes()
	return fmt.Sprintf("%x..", b[:4])
}
