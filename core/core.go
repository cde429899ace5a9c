// Package core is the SIP Core of spec.md section 4.4: it owns
// Transport, the Transaction Engine and the Dialog Table, implements
// the receive path (parse -> classify -> locate/create transaction ->
// enqueue -> wake) and the callbacks the engine invokes back into it
// (accept an INVITE into a dialog, send an ACK on 2xx success, answer
// CANCEL, REGISTER, BYE and unknown methods - OPTIONS included, since
// spec.md names no special case for it).
//
// Grounded on the teacher's Server/UserAgent wiring (server.go, ua.go)
// for the shape of "one struct owns transport+engine+handlers", and on
// cmd/proxysip/main.go's request handlers for the response-generation
// policy, adapted from a proxy's per-request handler table to spec.md's
// fixed INVITE/REGISTER/BYE/CANCEL/other policy.
package core

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sipcore/sipreactor/dialog"
	"github.com/sipcore/sipreactor/logging"
	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/metrics"
	"github.com/sipcore/sipreactor/parser"
	"github.com/sipcore/sipreactor/reactor"
	"github.com/sipcore/sipreactor/transaction"
	"github.com/sipcore/sipreactor/transport"
)

// Core glues Transport, the Transaction Engine and the Dialog Table
// together on a single reactor goroutine - spec.md section 2's "SIP
// Core" row and section 4.4.
type Core struct {
	Reactor   *reactor.Reactor
	Transport *transport.Transport
	Engine    *transaction.Engine
	Dialogs   *dialog.Table
	Metrics   *metrics.Recorder
	log       zerolog.Logger

	// wakePending tracks whether an engine cycle is already effectively
	// in flight, per spec.md section 9's "wake token queue" note - see
	// wake() below for why this module's architecture needs no actual
	// deferred queue.
	wakePending atomic.Bool
}

// New wires a fresh Core: a Reactor, a Transport bound to it, a
// Transaction Engine whose Sender is the Transport and whose Hooks is
// the Core itself, and an empty Dialog Table. reg receives the
// prometheus collectors (pass prometheus.NewRegistry() in tests,
// prometheus.DefaultRegisterer in cmd/sipreactord).
func New(reg prometheus.Registerer) *Core {
	r := reactor.New()
	tp := transport.Init(r)
	rec := metrics.New(reg)
	dialogs := dialog.NewTable()

	c := &Core{
		Reactor:   r,
		Transport: tp,
		Dialogs:   dialogs,
		Metrics:   rec,
		log:       logging.Default().With().Str("component", "core").Logger(),
	}
	c.Engine = transaction.NewEngine(r, tp, c, rec)
	tp.SetCallbacks(nil, c.handleDatagram)
	return c
}

// Start begins listening on addr ("" for the spec.md default
// 0.0.0.0:5060) and returns once the socket is bound. The reactor loop
// itself must still be driven by calling Run (typically from main, on
// its own goroutine) - spec.md section 5's shutdown order
// (Engine, Transport, Reactor) mirrors Stop below.
func (c *Core) Start(addr string) error {
	return c.Transport.Start(addr)
}

// Run drives the reactor loop until RequestExit is called. Intended to
// be the last call on the goroutine that owns this Core.
func (c *Core) Run() {
	c.Reactor.Run()
}

// Stop shuts the Core down in the order spec.md section 5 specifies:
// Engine (nothing further to flush - it has no background goroutines of
// its own), Transport, Reactor.
func (c *Core) Stop() {
	c.Transport.Destroy()
	c.Reactor.RequestExit()
}

// wake runs at the end of every receive path. It posts no reactor
// callback and schedules no engine cycle: the receive path already runs
// to completion synchronously inside the single reactor-goroutine
// callback that observed the datagram (transport.Transport.readLoop
// hands every datagram to the reactor via PostIO, and handleDatagram
// below runs inside that same callback). wake only sets and clears
// wakePending within the same call; the reactor_wake_coalesced_total
// counter moves only if two goroutines are inside wake at once, which
// does not happen while handleDatagram runs solely on the reactor
// goroutine.
func (c *Core) wake() {
	if !c.wakePending.CompareAndSwap(false, true) {
		c.Metrics.WakeCoalesced()
		return
	}
	c.wakePending.Store(false)
}

// handleDatagram is the receive path: parse -> classify -> locate/
// create transaction -> enqueue -> wake (spec.md section 4.4).
func (c *Core) handleDatagram(data []byte, remote string) {
	defer c.wake()

	msg, err := parser.Parse(data)
	if err != nil {
		c.log.Info().Err(err).Str("remote", remote).Msg("core: dropping unparsable datagram")
		return
	}
	msg.SetSource(remote)

	switch m := msg.(type) {
	case *message.Response:
		c.handleResponse(m)
	case *message.Request:
		c.handleRequest(m, remote)
	default:
		c.log.Warn().Msg("core: parser returned neither request nor response")
	}
}

// handleResponse locates the matching ICT/NICT and drives it. A
// response whose branch matches no client transaction is a stray
// response - spec.md section 4.3's edge case and section 8's scenario
// 5: logged at INFO, nothing sent, nothing created.
func (c *Core) handleResponse(resp *message.Response) {
	if _, found := c.Engine.HandleResponse(resp); !found {
		c.log.Info().Str("status", resp.StartLine()).Msg("core: stray response, no matching transaction")
	}
}

// handleRequest implements steps 3-6 of spec.md section 4.4: ACK
// against the dialog table, INVITE/other against the matching or
// newly-created server transaction, then the response policy for
// INVITE/REGISTER/BYE/CANCEL/everything else.
func (c *Core) handleRequest(req *message.Request, remote string) {
	dest := requestDestination(req, remote)
	req.SetDestination(dest)

	if req.IsAck() {
		c.handleAck(req)
		return
	}

	tx, found := c.Engine.HandleIncomingRequest(req)
	if found {
		// Retransmitted request (server transaction already existed) or
		// a CANCEL matched against its IST - the engine already
		// re-delivered the last response / fired OnCancelMatched. Nothing
		// further to do here.
		_ = tx
		return
	}

	switch req.Method {
	case message.INVITE:
		c.handleInvite(req, dest)
	case message.REGISTER:
		c.handleSimpleOK(req, dest)
	case message.BYE:
		c.handleBye(req, dest)
	case message.CANCEL:
		// No INVITE transaction matched this branch at all (RFC 3261
		// 9.2): there is nothing to terminate, but the CANCEL still gets
		// its own answer.
		c.respondNIST(req, dest, message.StatusCode(481), "Call/Transaction Does Not Exist")
	default:
		// Includes OPTIONS: spec.md section 4.4 names only
		// INVITE/REGISTER/BYE/CANCEL as having their own policy; every
		// other method, OPTIONS included, gets 501 Not Implemented.
		c.respondNIST(req, dest, message.StatusNotImplemented, "Not Implemented")
	}
}

// handleAck implements spec.md section 4.4 step 3 / section 4.3's edge
// case: first let the engine match it against an IST by branch (the
// non-2xx case, RFC 3261 17.1.1.3 - the ACK shares the INVITE's
// branch), then fall back to the Dialog Table (the 2xx case, RFC 3261
// 13.2.2.4 - that ACK carries a fresh branch and is a distinct
// transaction-less flow).
func (c *Core) handleAck(req *message.Request) {
	if _, found := c.Engine.HandleIncomingRequest(req); found {
		return
	}

	d, found := c.Dialogs.FindAsUAS(req)
	if !found {
		c.log.Info().Msg("core: ACK matches no transaction and no dialog, dropping")
		return
	}
	tx, ok := d.IST.(*transaction.Transaction)
	if !ok || tx == nil {
		return
	}
	c.Engine.ConfirmAck(tx)
	d.Confirm()
}

func (c *Core) handleInvite(req *message.Request, dest string) {
	tx, err := c.Engine.CreateIST(req, dest)
	if err != nil {
		c.log.Warn().Err(err).Msg("core: failed to create IST")
		return
	}
	resp := parser.InitResponse(req, message.StatusOK, "OK", nil)
	resp.SetDestination(dest)
	c.Engine.Respond(tx, resp)
}

func (c *Core) handleSimpleOK(req *message.Request, dest string) {
	c.respondNIST(req, dest, message.StatusOK, "OK")
}

// handleBye locates the dialog the BYE targets, answers 200 OK, and
// tears the dialog down immediately - spec.md section 4.4's BYE policy.
// Grounded on the teacher's DialogServer Bye handling (dialog_server.go)
// but, per spec.md section 9's note on the source's draft that freed
// the event without freeing the dialog, the dialog is removed
// unconditionally on this path rather than left for a later GC pass.
func (c *Core) handleBye(req *message.Request, dest string) {
	if d, found := c.Dialogs.FindAsUAS(req); found {
		c.Dialogs.Remove(d)
		c.Metrics.SetActiveDialogs(c.Dialogs.Len())
	}
	c.respondNIST(req, dest, message.StatusOK, "OK")
}

func (c *Core) respondNIST(req *message.Request, dest string, code message.StatusCode, reason string) {
	tx, err := c.Engine.CreateNIST(req, dest)
	if err != nil {
		c.log.Warn().Err(err).Msg("core: failed to create NIST")
		return
	}
	resp := parser.InitResponse(req, code, reason, nil)
	resp.SetDestination(dest)
	c.Engine.Respond(tx, resp)
}

// requestDestination resolves where a response/onward request should be
// sent: the transport-observed remote address, since this core only
// ever replies to the endpoint a request was received from (no
// forking/proxying - registrar/UAS scope, spec.md section 1).
func requestDestination(req *message.Request, remote string) string {
	if remote != "" {
		return remote
	}
	return req.Recipient.HostPort()
}

// --- transaction.Hooks ---

// OnInviteAccepted builds the Dialog once an IST sends its 2xx response
// - spec.md section 4.4: "construct a Dialog from the original request
// + response, update its route set from Record-Route, insert into the
// Dialog Table, and leave the IST running so it can retransmit the 2xx
// until ACK arrives."
func (c *Core) OnInviteAccepted(tx *transaction.Transaction, resp *message.Response) {
	d := dialog.FromUAS(tx.Origin(), resp)
	d.IST = tx
	c.Dialogs.Insert(d)
	c.Metrics.SetActiveDialogs(c.Dialogs.Len())
}

// OnInviteSuccess builds and sends the ACK for a 2xx response to our
// own INVITE - spec.md section 4.3: "an ACK to a 2xx is NOT an IST
// event", so the transaction layer can't build it itself; it has no
// dialog state. This core only ever plays the UAS role end-to-end
// (spec.md section 1's registrar-style UAS scope), so in practice this
// fires only for a core-originated OPTIONS-style probe INVITE, not for
// inbound call handling; it is still implemented so a future UAC
// extension (e.g. notify-on-call-answer) has somewhere to hook.
func (c *Core) OnInviteSuccess(tx *transaction.Transaction, resp *message.Response) {
	// NewAckForNon2xx copies the INVITE's branch, which is correct for a
	// non-2xx ACK but wrong here: an ACK to a 2xx is its own transaction
	// (RFC 3261 13.2.2.4) and must carry a fresh branch.
	ack := message.NewAckForNon2xx(tx.Origin(), resp)
	if via, ok := ack.Via(); ok {
		via.Params = via.Params.Add("branch", parser.Default.NewBranch())
	}
	ack.SetDestination(resp.Source())
	data := parser.Serialize(ack)
	if err := c.Transport.Send(ack.Destination(), data); err != nil {
		c.log.Error().Err(err).Msg("core: failed to send ACK for 2xx")
	}
}

// OnAckConfirmed is informational: the engine already absorbed the ACK
// to a non-2xx final response and moved the IST to Confirmed.
func (c *Core) OnAckConfirmed(tx *transaction.Transaction, ack *message.Request) {
	c.log.Debug().Str("key", string(tx.Key())).Msg("core: ACK confirmed non-2xx final")
}

// OnCancelMatched answers an in-Proceeding CANCEL with a 487 on the
// matched INVITE server transaction and gives the CANCEL itself its own
// NIST to answer with 200 OK - RFC 3261 9.2, spec.md section 4.3's
// CANCEL edge case.
func (c *Core) OnCancelMatched(tx *transaction.Transaction, cancel *message.Request) {
	resp := parser.InitResponse(tx.Origin(), message.StatusRequestTerminated, "Request Terminated", nil)
	resp.SetDestination(tx.Origin().Source())
	c.Engine.Respond(tx, resp)

	cancelTx, err := c.Engine.CreateNIST(cancel, cancel.Destination())
	if err != nil {
		c.log.Warn().Err(err).Msg("core: failed to create NIST for CANCEL")
		return
	}
	cancelResp := parser.InitResponse(cancel, message.StatusOK, "OK", nil)
	cancelResp.SetDestination(cancel.Source())
	c.Engine.Respond(cancelTx, cancelResp)
}

// OnCancelNotInProceeding answers a CANCEL whose target INVITE has
// already left Proceeding: the CANCEL still gets 200 OK on its own
// NIST, but no 487 is generated on the INVITE (SPEC_FULL.md section
// 4.4's supplemented behavior, replacing the source's unconditional
// 487 the design notes flag as a likely bug - spec.md section 9).
func (c *Core) OnCancelNotInProceeding(tx *transaction.Transaction, cancel *message.Request) {
	cancelTx, err := c.Engine.CreateNIST(cancel, cancel.Destination())
	if err != nil {
		c.log.Warn().Err(err).Msg("core: failed to create NIST for late CANCEL")
		return
	}
	cancelResp := parser.InitResponse(cancel, message.StatusOK, "OK", nil)
	cancelResp.SetDestination(cancel.Source())
	c.Engine.Respond(cancelTx, cancelResp)
}

// OnTerminated removes any local bookkeeping tied to tx. The engine has
// already removed tx from its kind table - spec.md section 3's kill
// callback invariant ("no transaction outlives its entry in the
// per-kind sequence").
func (c *Core) OnTerminated(tx *transaction.Transaction) {
	c.log.Debug().Str("key", string(tx.Key())).Str("kind", tx.Kind().String()).Msg("core: transaction terminated")
}

// OnTimeout logs a transaction giving up (Timer B/F expired with no
// final response, or Timer H expired on an IST with no ACK) - spec.md
// section 7's error taxonomy treats this as an IllegalAction-adjacent,
// non-fatal condition: logged, no protocol state elsewhere advances.
func (c *Core) OnTimeout(tx *transaction.Transaction) {
	c.log.Warn().Str("key", string(tx.Key())).Str("kind", tx.Kind().String()).Msg("core: transaction timed out")
}

var _ transaction.Hooks = (*Core)(nil)
