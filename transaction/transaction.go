package transaction

import (
	"context"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/reactor"
)

// Transaction is one RFC 3261 17 state machine instance. Every field is
// only ever touched from the reactor goroutine (via Engine methods and
// timer callbacks the reactor runs), so
// there is no internal locking - the back-pointer to Engine is a plain
// pointer, matching spec.md section 5's no-mutex invariant.
type Transaction struct {
	key    Key
	kind   Kind
	engine *Engine
	fsm    *fsm.FSM
	log    zerolog.Logger

	origin       *message.Request  // request that created this transaction
	lastResponse *message.Response // last response sent (server) or received (client)
	ack          *message.Request  // ACK built for a non-2xx final (ICT only)
	ackIn        *message.Request  // ACK received for a non-2xx final (IST only)
	dest         string            // remote socket this transaction talks to

	retransmitInterval time.Duration
	retransmit         *reactor.Timer
	giveUp             *reactor.Timer
	wait               *reactor.Timer
}

// Key identifies the transaction for table lookup/retransmission matching.
func (tx *Transaction) Key() Key { return tx.key }

// Kind reports which of the four state machines this is.
func (tx *Transaction) Kind() Kind { return tx.kind }

// State returns the current FSM state name.
func (tx *Transaction) State() string { return tx.fsm.Current() }

// Origin is the request that created the transaction.
func (tx *Transaction) Origin() *message.Request { return tx.origin }

// LastResponse is the most recent response sent/received on this
// transaction, or nil if none yet.
func (tx *Transaction) LastResponse() *message.Response { return tx.lastResponse }

// Terminated reports whether the transaction has reached its terminal
// state; the engine removes a terminated transaction from its table right
// after the event that produced the transition.
func (tx *Transaction) Terminated() bool { return tx.fsm.Current() == "terminated" }

func (tx *Transaction) fire(event string) {
	if err := tx.fsm.Event(context.Background(), event); err != nil {
		if _, ok := err.(fsm.NoTransitionError); ok {
			tx.log.Debug().Str("event", event).Str("state", tx.fsm.Current()).Msg("transaction: event had no transition")
			return
		}
		if _, ok := err.(fsm.InvalidEventError); ok {
			tx.log.Debug().Str("event", event).Str("state", tx.fsm.Current()).Msg("transaction: event invalid in state")
			return
		}
		tx.log.Warn().Err(err).Str("event", event).Msg("transaction: fsm event error")
	}
}

func (tx *Transaction) send(msg message.Message) {
	tx.engine.send(tx, msg)
}

func (tx *Transaction) armRetransmit(d time.Duration, event string) {
	tx.cancelRetransmit()
	tx.retransmit = tx.engine.reactor.Schedule(d, func() {
		tx.engine.metrics.Retransmission(tx.kind)
		tx.fire(event)
	})
}

func (tx *Transaction) cancelRetransmit() {
	if tx.retransmit != nil {
		tx.retransmit.Cancel()
		tx.retransmit = nil
	}
}

func (tx *Transaction) armGiveUp(d time.Duration, event string) {
	tx.cancelGiveUp()
	tx.giveUp = tx.engine.reactor.Schedule(d, func() {
		tx.fire(event)
		tx.engine.afterEvent(tx)
	})
}

func (tx *Transaction) cancelGiveUp() {
	if tx.giveUp != nil {
		tx.giveUp.Cancel()
		tx.giveUp = nil
	}
}

func (tx *Transaction) armWait(d time.Duration, event string) {
	tx.cancelWait()
	tx.wait = tx.engine.reactor.Schedule(d, func() {
		tx.fire(event)
		tx.engine.afterEvent(tx)
	})
}

func (tx *Transaction) cancelWait() {
	if tx.wait != nil {
		tx.wait.Cancel()
		tx.wait = nil
	}
}

func (tx *Transaction) cancelAllTimers() {
	tx.cancelRetransmit()
	tx.cancelGiveUp()
	tx.cancelWait()
}
