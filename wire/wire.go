// Package wire defines the point-to-point transport envelope and the
// CBOR-based canonical encoding used for every protocol message (§6:
// "length-prefixed binary serialization with big-endian integers").
// CBOR gives us that framing for free without a hand-rolled codec,
// matching the teacher's own choice for round messages
// (pkg/protocol/handler.go uses cbor.Marshal/Unmarshal for exactly this
// purpose).
package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/akhilsb/velox-mpc/party"
)

// ProtMsgType enumerates the application protmsg variants of §6.
type ProtMsgType int

const (
	MsgSharesL1 ProtMsgType = iota
	MsgSharesL2
	MsgQuadShares
	MsgHashZ
	MsgReconstructCoin
	MsgReconstructMaskedOutput
	MsgReconstructOutputMasks
	MsgReconstructRandBitShares
)

// Envelope is the authenticated point-to-point payload of §6:
// "{protmsg, sender, mac}".
type Envelope struct {
	ProtMsg ProtMsgType
	Sender  party.ID
	Depth   int
	Payload []byte // CBOR-encoded protmsg-specific body
	MAC     []byte
}

// encMode is a deterministic CBOR mode: canonical encoding so the same
// logical message always produces the same bytes, which matters
// wherever a message's hash stands in for its content (CTRBC payload
// hashing, broadcast-hash agreement).
var encMode = mustCanonicalMode()

func mustCanonicalMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Errorf("wire: building canonical CBOR mode: %w", err))
	}
	return mode
}

// Marshal encodes v canonically.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes into v.
func Unmarshal(b []byte, v interface{}) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}

// Sign computes the HMAC-SHA256 MAC over an envelope's fields using the
// dealer-receiver pairwise secret key (§6: "MAC'd with the pairwise
// secret key").
func Sign(key []byte, protMsg ProtMsgType, sender party.ID, depth int, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	writeMACInput(mac, protMsg, sender, depth, payload)
	return mac.Sum(nil)
}

// Verify checks an envelope's MAC. On failure the caller must drop the
// message and log, per §7 "Transport MAC failure. Drop single message;
// log" -- Verify itself does not log; that is the transport-layer
// handler's responsibility so this package stays side-effect free.
func Verify(key []byte, e *Envelope) bool {
	expected := Sign(key, e.ProtMsg, e.Sender, e.Depth, e.Payload)
	return hmac.Equal(expected, e.MAC)
}

func writeMACInput(w interface{ Write([]byte) (int, error) }, protMsg ProtMsgType, sender party.ID, depth int, payload []byte) {
	_, _ = w.Write([]byte{byte(protMsg)})
	_, _ = w.Write([]byte{byte(sender), byte(sender >> 8)})
	_, _ = w.Write([]byte{byte(depth), byte(depth >> 8), byte(depth >> 16), byte(depth >> 24)})
	_, _ = w.Write(payload)
}
