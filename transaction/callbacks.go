package transaction

import "github.com/sipcore/sipreactor/message"

// Sender is the transport-layer dependency the engine needs: fire epochs
// of a serialized message at a destination. transport.Transport already
// satisfies this.
type Sender interface {
	Send(addr string, data []byte) error
}

// Hooks is how the engine tells the transaction user (the core package)
// about state changes that matter above the transaction layer. Every
// method runs synchronously on the reactor goroutine from inside an
// Engine method or a transaction timer callback - handlers must not block.
type Hooks interface {
	// OnInviteAccepted fires once, when an IST sends its 2xx response.
	// The core builds the Dialog here; the IST itself keeps retransmitting
	// the 2xx until ConfirmAck is called (spec.md 4.3/4.5: ACK to a 2xx is
	// routed via the Dialog Table, not matched as an IST event).
	OnInviteAccepted(tx *Transaction, resp *message.Response)

	// OnInviteSuccess fires once, on the ICT side, when a 2xx response to
	// our own INVITE arrives. The core must build and send the ACK itself
	// (it needs dialog state the transaction layer doesn't have).
	OnInviteSuccess(tx *Transaction, resp *message.Response)

	// OnAckConfirmed fires when an ACK to a non-2xx final response is
	// absorbed directly by the IST (branch-matched, RFC 3261 17.2.1).
	OnAckConfirmed(tx *Transaction, ack *message.Request)

	// OnCancelMatched fires when an incoming CANCEL matched this IST by
	// branch while it was still Proceeding - the core should now send a
	// 487 on tx (spec.md 4.4's CANCEL handling).
	OnCancelMatched(tx *Transaction, cancel *message.Request)

	// OnCancelNotInProceeding fires when an incoming CANCEL matched this
	// IST by branch but the IST had already left Proceeding (RFC 3261
	// 9.2 - a final response is already in flight). No 487 is generated;
	// the core should still answer the CANCEL itself with 200 OK
	// (SPEC_FULL.md section 4.4's supplemented CANCEL behavior).
	OnCancelNotInProceeding(tx *Transaction, cancel *message.Request)

	// OnTerminated fires once per transaction, right after it is removed
	// from its kind table.
	OnTerminated(tx *Transaction)

	// OnTimeout fires when an ICT/NICT gives up waiting for any final
	// response (Timer B / Timer F), or when an IST gives up waiting for the
	// ACK to its non-2xx final response (Timer H).
	OnTimeout(tx *Transaction)
}

// MetricsRecorder lets the core wire prometheus counters into the engine
// without this package importing the metrics stack directly.
type MetricsRecorder interface {
	TransactionCreated(kind Kind)
	TransactionTerminated(kind Kind)
	Retransmission(kind Kind)
}

type noopMetrics struct{}

func (noopMetrics) TransactionCreated(Kind)    {}
func (noopMetrics) TransactionTerminated(Kind) {}
func (noopMetrics) Retransmission(Kind)        {}

// NoopHooks is a Hooks implementation that does nothing; useful in tests
// that only care about FSM/timer behavior.
type NoopHooks struct{}

func (NoopHooks) OnInviteAccepted(*Transaction, *message.Response) {}
func (NoopHooks) OnInviteSuccess(*Transaction, *message.Response)  {}
func (NoopHooks) OnAckConfirmed(*Transaction, *message.Request)    {}
func (NoopHooks) OnCancelMatched(*Transaction, *message.Request)   {}
func (NoopHooks) OnCancelNotInProceeding(*Transaction, *message.Request) {}
func (NoopHooks) OnTerminated(*Transaction)                        {}
func (NoopHooks) OnTimeout(*Transaction)                           {}
