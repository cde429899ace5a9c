package transaction

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/sipcore/sipreactor/message"
)

// newICTFSM builds the INVITE client transaction state machine - RFC
// 3261 17.1.1, grounded on the teacher's sip/transaction_fsm.go states
// and arzzra-soft_phone/pkg/dialog/tx.go's looplab/fsm wiring pattern.
// Calling starts outside the FSM: the engine sends the INVITE and arms
// Timer A/B before the transaction is ever handed an event.
func newICTFSM(tx *Transaction) *fsm.FSM {
	return fsm.NewFSM(
		"calling",
		fsm.Events{
			{Name: "provisional", Src: []string{"calling", "proceeding"}, Dst: "proceeding"},
			{Name: "success", Src: []string{"calling", "proceeding"}, Dst: "terminated"},
			{Name: "final", Src: []string{"calling", "proceeding"}, Dst: "completed"},
			{Name: "retransmit_final", Src: []string{"completed"}, Dst: "completed"},
			{Name: "timer_a", Src: []string{"calling"}, Dst: "calling"},
			{Name: "timer_b", Src: []string{"calling", "proceeding"}, Dst: "terminated"},
			{Name: "timer_d", Src: []string{"completed"}, Dst: "terminated"},
			{Name: "transport_err", Src: []string{"calling", "proceeding", "completed"}, Dst: "terminated"},
		},
		fsm.Callbacks{
			// looplab/fsm runs no enter_ callback on a self-transition, so
			// calling->calling on Timer A is handled after the event.
			"after_timer_a": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.origin)
				next := tx.retransmitInterval * 2
				tx.retransmitInterval = next
				tx.armRetransmit(next, "timer_a")
			},
			"enter_completed": func(_ context.Context, e *fsm.Event) {
				switch e.Event {
				case "final":
					tx.cancelRetransmit()
					tx.cancelGiveUp()
					tx.ack = message.NewAckForNon2xx(tx.origin, tx.lastResponse)
					tx.send(tx.ack)
					tx.armWait(TimerD, "timer_d")
				case "retransmit_final":
					if tx.ack != nil {
						tx.send(tx.ack)
					}
				}
			},
			"enter_terminated": func(_ context.Context, e *fsm.Event) {
				tx.cancelAllTimers()
				if e.Event == "success" {
					tx.engine.hooks.OnInviteSuccess(tx, tx.lastResponse)
				}
				if e.Event == "timer_b" {
					tx.engine.hooks.OnTimeout(tx)
				}
			},
		},
	)
}
