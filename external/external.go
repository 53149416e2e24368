// Package external types the five collaborators §1 and §6 place
// deliberately out of this module's scope: CTRBC, AVID, RA, ACS, and the
// AVSS oracle used for output-mask generation. Every consumer in this
// repository depends only on these interfaces, never on a concrete
// implementation, so the core can be exercised against fakes in tests
// and wired to real implementations in a full deployment.
package external

import "github.com/akhilsb/velox-mpc/party"

// CTRBC is the Cancellation-Tolerant Reliable Broadcast primitive
// (§6 "CTRBC interface"): every honest party delivers the same payload
// for a given (sender, instanceID) or none delivers.
type CTRBC interface {
	// Send broadcasts payload under a caller-chosen instance id.
	Send(instanceID uint64, payload []byte) error
	// Deliveries streams (instanceID, sender, payload) triples as they
	// are reliably delivered.
	Deliveries() <-chan CTRBCDelivery
}

// CTRBCDelivery is one reliably-broadcast payload delivery.
type CTRBCDelivery struct {
	InstanceID uint64
	Sender     party.ID
	Payload    []byte
}

// AVID is the Asynchronous Verifiable Information Dispersal primitive
// (§6 "AVID interface"): any honest party that delivers a payload for
// (sender, instanceID) gets exactly what the sender dispersed.
type AVID interface {
	// Send disperses a per-recipient share vector; a nil entry skips
	// that recipient (used in PRF mode for receivers who reconstruct
	// locally).
	Send(instanceID uint64, shares []AVIDShare) error
	Deliveries() <-chan AVIDDelivery
}

// AVIDShare is one recipient's dispersed payload.
type AVIDShare struct {
	Recipient party.ID
	Payload   []byte // nil to skip this recipient
}

// AVIDDelivery is one recipient's received payload; Payload is nil if
// this recipient was skipped by the sender.
type AVIDDelivery struct {
	InstanceID uint64
	Sender     party.ID
	Payload    []byte
}

// RA is the Reliable Agreement primitive (§6 "RA interface"): binary
// agreement with validity, used to gate ACSS-AB/Sh2t termination on a
// positive verification outcome reaching consensus.
type RA interface {
	Vote(instance uint64, dealer party.ID, value uint8) error
	Decisions() <-chan RADecision
}

// RADecision is one (instance, dealer) binary decision.
type RADecision struct {
	Instance uint64
	Dealer   party.ID
	Value    uint8
}

// ACS is the Agreement on Common Subset primitive (§6 "ACS interface"):
// outputs a set of at least n-t agreed party ids.
type ACS interface {
	Ready(instance uint64, dealer party.ID) error
	Outputs() <-chan ACSOutput
}

// ACSOutput is one ACS round's agreed subset.
type ACSOutput struct {
	Instance uint64
	Set      party.Set
}

// AVSS is the Asynchronous Verifiable Secret Sharing oracle used for
// output-mask generation (§6 "AVSS interface").
type AVSS interface {
	Deal(instance uint64, secrets []FieldBytes) error
	OpenFor(instance uint64, origin party.ID) error
	Shares() <-chan AVSSShareEvent
	Opens() <-chan AVSSOpenEvent
}

// FieldBytes is a serialized field element, kept opaque at this
// boundary so the external package never imports field directly (it
// must stay a leaf dependency with no knowledge of this module's
// internal types).
type FieldBytes []byte

// AVSSShareEvent is delivered once per (origin, this party)'s share of
// origin's dealt batch.
type AVSSShareEvent struct {
	Origin    party.ID
	ShareTrip ShareTriple
}

// AVSSOpenEvent is delivered once per (origin, sender) opening of
// origin's dealt batch.
type AVSSOpenEvent struct {
	Origin     party.ID
	ShareOf    party.ID
	ShareTrip  ShareTriple
}

// ShareTriple matches §6's "share-triple": the AVSS oracle's internal
// representation of one party's share is opaque to this module, so it
// is carried as serialized bytes.
type ShareTriple []byte
