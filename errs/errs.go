// Package errs collects the sentinel errors named in the protocol's error
// handling design. Dealer misbehavior is deliberately absent here: it is
// never surfaced as a Go error, only as an absence from the RA-delivered
// set (see acss.Receiver).
package errs

import "errors"

var (
	// ErrQueueUnderrun is returned when preprocessing has not produced
	// enough R/O/coin/mask shares for the circuit currently being
	// evaluated. Fatal for the circuit instance.
	ErrQueueUnderrun = errors.New("velox-mpc: preprocessing queue underrun")

	// ErrTupleVerificationFailed is returned when the tuple verifier's
	// final opened triple does not satisfy z = x*y.
	ErrTupleVerificationFailed = errors.New("velox-mpc: tuple verification failed")

	// ErrOutputMaskingFailed is returned when the masked-output
	// reconstruction fails the degree check.
	ErrOutputMaskingFailed = errors.New("velox-mpc: output masking degree check failed")

	// ErrMACFailed marks a transport message whose MAC did not verify.
	// The message is dropped, never escalated.
	ErrMACFailed = errors.New("velox-mpc: transport MAC verification failed")

	// ErrMalformedMessage marks a message that failed to deserialize.
	// The delivery is dropped and logged.
	ErrMalformedMessage = errors.New("velox-mpc: malformed message")

	// ErrAborted is the terminal error delivered to the application
	// when the protocol aborts (tuple verification failure, output
	// masking failure, or t+1 parties voting abort).
	ErrAborted = errors.New("velox-mpc: protocol aborted")

	// ErrDoublePop marks an attempt to pop from an already-exhausted
	// queue slot that a depth state already recorded as consumed --
	// a programmer-error invariant violation, never triggered by an
	// adversary.
	ErrDoublePop = errors.New("velox-mpc: queue element already consumed")
)
