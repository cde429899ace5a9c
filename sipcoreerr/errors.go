// Package sipcoreerr defines the design-level error taxonomy from
// spec.md section 7. Sentinel errors are wrapped with fmt.Errorf and
// %w so callers can errors.Is against the kind, mirroring the teacher's
// ErrTransactionTimeout/ErrTransactionTransport style (sip/transaction.go).
package sipcoreerr

import "errors"

var (
	// ErrBadParam is a caller-side programming error: fatal to that
	// call, logged, local state unchanged.
	ErrBadParam = errors.New("bad parameter")

	// ErrInvalidHandle indicates a context/handle magic mismatch.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrOutOfResources bubbles to the caller, which must abort the
	// operation and free any partial state.
	ErrOutOfResources = errors.New("out of resources")

	// ErrNetworkProblem covers socket or parse failures: logged,
	// operation aborted, no protocol state advances.
	ErrNetworkProblem = errors.New("network problem")

	// ErrIllegalAction is a protocol-level mismatch (e.g. a response
	// with no matching transaction): the event is dropped silently at
	// INFO level.
	ErrIllegalAction = errors.New("illegal protocol action")

	// ErrNotSupported marks an unknown request method; this never
	// surfaces to the caller as an error - the wire gets a 501 instead.
	ErrNotSupported = errors.New("method not supported")
)
