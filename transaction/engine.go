// Package transaction implements the RFC 3261 17 transaction engine:
// the four state machines (ICT, IST, NICT, NIST), their timers, and the
// tables that key transactions by branch for retransmission detection
// and response routing. Every exported method must only be called from
// the reactor goroutine - the engine keeps no locks of its own (spec.md
// section 5), trusting the reactor to serialize all access.
//
// State shapes are grounded on the teacher's sip/transaction.go and
// sip/transaction_layer.go (TransactionLayer, makeServerTxKey/
// makeClientTxKey, the lock-guarded transactionStore pattern - here
// without the locks, since there is exactly one goroutine). The FSMs
// themselves are built with github.com/looplab/fsm, following
// arzzra-soft_phone/pkg/dialog/tx.go's NewFSM/Events/Callbacks usage
// rather than the teacher's own hand-rolled switch-based FSM, per
// DESIGN.md.
package transaction

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sipcore/sipreactor/logging"
	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/parser"
	"github.com/sipcore/sipreactor/reactor"
)

// kindTable is an insertion-ordered map of one kind's transactions,
// grounded on the teacher's transactionStore[T] (sip/transaction_layer.go)
// minus its mutex - single reactor goroutine owns every table.
type kindTable struct {
	order []Key
	items map[Key]*Transaction
}

func newKindTable() *kindTable {
	return &kindTable{items: make(map[Key]*Transaction)}
}

func (t *kindTable) insert(tx *Transaction) {
	t.order = append(t.order, tx.key)
	t.items[tx.key] = tx
}

func (t *kindTable) find(key Key) (*Transaction, bool) {
	tx, ok := t.items[key]
	return tx, ok
}

func (t *kindTable) remove(key Key) {
	delete(t.items, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *kindTable) len() int { return len(t.order) }

// Engine owns all four transaction tables and drives every FSM. It is
// the "Transaction Engine" of spec.md section 4.3.
type Engine struct {
	reactor *reactor.Reactor
	sender  Sender
	hooks   Hooks
	metrics MetricsRecorder
	log     zerolog.Logger

	tables [4]*kindTable
}

// NewEngine wires the engine to the transport (sender), the reactor it
// schedules timers on, and the core's Hooks. metrics may be nil, in
// which case recordings are dropped.
func NewEngine(r *reactor.Reactor, sender Sender, hooks Hooks, metrics MetricsRecorder) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e := &Engine{
		reactor: r,
		sender:  sender,
		hooks:   hooks,
		metrics: metrics,
		log:     logging.Default().With().Str("component", "transaction").Logger(),
	}
	for i := range e.tables {
		e.tables[i] = newKindTable()
	}
	return e
}

// Count reports how many live transactions a kind's table holds - used
// by tests and the dialog_active-adjacent diagnostics.
func (e *Engine) Count(kind Kind) int { return e.tables[kind].len() }

func (e *Engine) send(tx *Transaction, msg message.Message) {
	data := parser.Serialize(msg)
	if err := e.sender.Send(tx.dest, data); err != nil {
		e.log.Error().Err(err).Str("key", string(tx.key)).Str("kind", tx.kind.String()).Msg("transaction: send failed")
		// Deferred: send() is frequently called from inside an FSM
		// callback (a retransmit, an accept, ...), and looplab/fsm does
		// not support firing a new event while one is still being
		// processed. Posting to the reactor lets the current transition
		// finish first.
		e.reactor.PostEngine(func() {
			if _, ok := e.tables[tx.kind].find(tx.key); !ok {
				return
			}
			tx.fire("transport_err")
			e.afterEvent(tx)
		})
	}
}

// afterEvent removes tx from its table and notifies hooks if the event
// just fired pushed it into Terminated. Every call site that fires an
// FSM event must follow it with afterEvent.
func (e *Engine) afterEvent(tx *Transaction) {
	if !tx.Terminated() {
		return
	}
	if _, ok := e.tables[tx.kind].find(tx.key); !ok {
		return
	}
	e.tables[tx.kind].remove(tx.key)
	e.metrics.TransactionTerminated(tx.kind)
	e.hooks.OnTerminated(tx)
}

// CreateICT starts a new INVITE client transaction: sends req
// immediately and arms Timer A/B. Returns an error if req has no
// RFC3261 branch or a transaction already owns that key.
func (e *Engine) CreateICT(req *message.Request, dest string) (*Transaction, error) {
	key, err := ClientKeyForRequest(req)
	if err != nil {
		return nil, err
	}
	if _, exists := e.tables[ICT].find(key); exists {
		return nil, fmt.Errorf("transaction: ICT %s already exists", key)
	}
	tx := &Transaction{key: key, kind: ICT, origin: req, dest: dest,
		log: e.log.With().Str("key", string(key)).Logger()}
	tx.engine = e
	tx.fsm = newICTFSM(tx)
	e.tables[ICT].insert(tx)
	e.metrics.TransactionCreated(ICT)

	tx.send(req)
	tx.retransmitInterval = TimerA
	tx.armRetransmit(TimerA, "timer_a")
	tx.armGiveUp(TimerB, "timer_b")
	return tx, nil
}

// CreateNICT starts a new non-INVITE client transaction: sends req
// immediately and arms Timer E/F.
func (e *Engine) CreateNICT(req *message.Request, dest string) (*Transaction, error) {
	key, err := ClientKeyForRequest(req)
	if err != nil {
		return nil, err
	}
	if _, exists := e.tables[NICT].find(key); exists {
		return nil, fmt.Errorf("transaction: NICT %s already exists", key)
	}
	tx := &Transaction{key: key, kind: NICT, origin: req, dest: dest,
		log: e.log.With().Str("key", string(key)).Logger()}
	tx.engine = e
	tx.fsm = newNICTFSM(tx)
	e.tables[NICT].insert(tx)
	e.metrics.TransactionCreated(NICT)

	tx.send(req)
	tx.retransmitInterval = TimerE
	tx.armRetransmit(TimerE, "timer_e_trying")
	tx.armGiveUp(TimerF, "timer_f")
	return tx, nil
}

// HandleResponse routes an inbound response to the ICT or NICT it
// matches (by branch+CSeq method), driving the appropriate FSM event.
// Returns false if no transaction matched - spec.md/RFC 3261 17.1.1.2:
// an unmatched response is passed straight to the core, which logs it
// and does nothing else.
func (e *Engine) HandleResponse(resp *message.Response) (*Transaction, bool) {
	key, err := ClientKeyForResponse(resp)
	if err != nil {
		e.log.Debug().Err(err).Msg("transaction: response has no matchable key")
		return nil, false
	}

	cseq, hasCSeq := resp.CSeq()
	kind := NICT
	if hasCSeq && cseq.MethodName == message.INVITE {
		kind = ICT
	}

	tx, ok := e.tables[kind].find(key)
	if !ok {
		return nil, false
	}

	tx.lastResponse = resp
	switch {
	case resp.IsProvisional():
		tx.fire("provisional")
	case resp.IsSuccess():
		if kind == ICT {
			tx.fire("success")
		} else {
			tx.fire("final")
		}
	default:
		tx.fire("final")
	}
	e.afterEvent(tx)
	return tx, true
}

// serverTableFor picks IST for INVITE/ACK, NIST for everything else.
func serverTableFor(method message.RequestMethod) Kind {
	if method == message.INVITE || method == message.ACK {
		return IST
	}
	return NIST
}

// HandleIncomingRequest matches req against an existing server
// transaction or reports that none exists so the core can create one.
// CANCEL is special-cased per RFC 3261 9.2: it is looked up against the
// IST table keyed as if it were the INVITE it targets.
//
// Returns (tx, found). When found is false for a non-ACK request, the
// core is expected to call CreateIST/CreateNIST next. When found is
// false for an ACK, the request's branch didn't match any IST - that
// only happens for the 2xx case, which the core must resolve via the
// Dialog Table (spec.md 4.5) and confirm with ConfirmAck.
func (e *Engine) HandleIncomingRequest(req *message.Request) (*Transaction, bool) {
	if req.IsCancel() {
		key, err := ServerKeyForRequest(req, message.INVITE)
		if err != nil {
			e.log.Debug().Err(err).Msg("transaction: CANCEL has no matchable key")
			return nil, false
		}
		tx, ok := e.tables[IST].find(key)
		if !ok {
			return nil, false
		}
		if tx.State() == "proceeding" {
			e.hooks.OnCancelMatched(tx, req)
		} else {
			e.hooks.OnCancelNotInProceeding(tx, req)
		}
		return tx, true
	}

	kind := serverTableFor(req.Method)
	asMethod := message.RequestMethod("")
	if req.IsAck() {
		asMethod = message.INVITE
	}
	key, err := ServerKeyForRequest(req, asMethod)
	if err != nil {
		e.log.Debug().Err(err).Msg("transaction: request has no matchable key")
		return nil, false
	}

	tx, ok := e.tables[kind].find(key)
	if !ok {
		return nil, false
	}

	if req.IsAck() {
		tx.ackIn = req
		tx.fire("ack")
		e.afterEvent(tx)
		return tx, true
	}

	// Retransmitted request: re-deliver the last response if one has been
	// sent; with none sent yet it's still being processed and is silently
	// absorbed (RFC 3261 17.2.2). An IST in Confirmed absorbs it as well.
	switch tx.State() {
	case "completed":
		tx.fire("retransmit_completed")
	case "accepted":
		tx.fire("retransmit_accepted")
	case "proceeding":
		if tx.lastResponse != nil {
			tx.send(tx.lastResponse)
		}
	}
	e.metrics.Retransmission(kind)
	e.afterEvent(tx)
	return tx, true
}

// CreateIST registers a freshly arrived INVITE as a new server
// transaction - the core calls this only after HandleIncomingRequest
// reported no match.
func (e *Engine) CreateIST(req *message.Request, dest string) (*Transaction, error) {
	key, err := ServerKeyForRequest(req, "")
	if err != nil {
		return nil, err
	}
	tx := &Transaction{key: key, kind: IST, origin: req, dest: dest,
		log: e.log.With().Str("key", string(key)).Logger()}
	tx.engine = e
	tx.fsm = newISTFSM(tx)
	e.tables[IST].insert(tx)
	e.metrics.TransactionCreated(IST)
	return tx, nil
}

// CreateNIST registers a freshly arrived non-INVITE request as a new
// server transaction.
func (e *Engine) CreateNIST(req *message.Request, dest string) (*Transaction, error) {
	key, err := ServerKeyForRequest(req, "")
	if err != nil {
		return nil, err
	}
	tx := &Transaction{key: key, kind: NIST, origin: req, dest: dest,
		log: e.log.With().Str("key", string(key)).Logger()}
	tx.engine = e
	tx.fsm = newNISTFSM(tx)
	e.tables[NIST].insert(tx)
	e.metrics.TransactionCreated(NIST)
	return tx, nil
}

// Respond is the server-side entry point the core uses to send a
// provisional or final response on a transaction it owns.
func (e *Engine) Respond(tx *Transaction, resp *message.Response) {
	tx.lastResponse = resp
	tx.send(resp)

	switch {
	case resp.IsProvisional():
		tx.fire("provisional")
	case resp.IsSuccess() && tx.kind == IST:
		tx.fire("accept")
	default:
		tx.fire("final")
	}
	e.afterEvent(tx)
}

// ConfirmAck is called by the core/dialog layer when it observes the
// ACK to a 2xx response (matched by dialog identity, not by branch) -
// it stops the IST's 2xx retransmission and lets it terminate.
func (e *Engine) ConfirmAck(tx *Transaction) {
	if tx.kind != IST {
		return
	}
	tx.fire("ack_confirmed")
	e.afterEvent(tx)
}
