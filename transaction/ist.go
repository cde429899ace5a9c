package transaction

import (
	"context"

	"github.com/looplab/fsm"
)

// newISTFSM builds the INVITE server transaction state machine - RFC
// 3261 17.2.1, extended per spec.md 4.3 with an "accepted" state: once
// the TU sends a 2xx, the transaction does not terminate immediately
// (the canonical RFC behavior) but keeps retransmitting the 2xx until
// the Dialog Table observes the matching ACK and calls ConfirmAck,
// because the ACK to a 2xx carries a fresh branch and never reaches
// this FSM as a transaction event.
func newISTFSM(tx *Transaction) *fsm.FSM {
	return fsm.NewFSM(
		"proceeding",
		fsm.Events{
			{Name: "provisional", Src: []string{"proceeding"}, Dst: "proceeding"},
			{Name: "final", Src: []string{"proceeding"}, Dst: "completed"},
			{Name: "accept", Src: []string{"proceeding"}, Dst: "accepted"},
			{Name: "retransmit_completed", Src: []string{"completed"}, Dst: "completed"},
			{Name: "retransmit_accepted", Src: []string{"accepted"}, Dst: "accepted"},
			{Name: "ack", Src: []string{"completed"}, Dst: "confirmed"},
			{Name: "ack_confirmed", Src: []string{"accepted"}, Dst: "terminated"},
			{Name: "timer_g", Src: []string{"completed"}, Dst: "completed"},
			{Name: "timer_h", Src: []string{"completed"}, Dst: "terminated"},
			{Name: "timer_i", Src: []string{"confirmed"}, Dst: "terminated"},
			{Name: "timer_2xx", Src: []string{"accepted"}, Dst: "accepted"},
			{Name: "timer_ackwait", Src: []string{"accepted"}, Dst: "terminated"},
			{Name: "transport_err", Src: []string{"proceeding", "completed", "accepted", "confirmed"}, Dst: "terminated"},
		},
		fsm.Callbacks{
			"enter_completed": func(_ context.Context, e *fsm.Event) {
				switch e.Event {
				case "final":
					tx.retransmitInterval = TimerG
					tx.armRetransmit(TimerG, "timer_g")
					tx.armGiveUp(TimerH, "timer_h")
				}
			},
			// looplab/fsm runs no enter_ callback on a self-transition, so the
			// completed->completed events are handled after the event instead.
			"after_timer_g": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.lastResponse)
				next := tx.retransmitInterval * 2
				if next > T2 {
					next = T2
				}
				tx.retransmitInterval = next
				tx.armRetransmit(next, "timer_g")
			},
			"after_retransmit_completed": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.lastResponse)
			},
			"enter_accepted": func(_ context.Context, e *fsm.Event) {
				switch e.Event {
				case "accept":
					tx.retransmitInterval = Timer2xx
					tx.armRetransmit(Timer2xx, "timer_2xx")
					tx.armGiveUp(TimerAckWait, "timer_ackwait")
					tx.engine.hooks.OnInviteAccepted(tx, tx.lastResponse)
				}
			},
			"after_timer_2xx": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.lastResponse)
				tx.armRetransmit(tx.retransmitInterval, "timer_2xx")
			},
			"after_retransmit_accepted": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.lastResponse)
			},
			"enter_confirmed": func(_ context.Context, e *fsm.Event) {
				tx.cancelAllTimers()
				tx.armWait(TimerI, "timer_i")
				tx.engine.hooks.OnAckConfirmed(tx, tx.ackIn)
			},
			"enter_terminated": func(_ context.Context, e *fsm.Event) {
				tx.cancelAllTimers()
				if e.Event == "timer_h" {
					tx.engine.hooks.OnTimeout(tx)
				}
			},
		},
	)
}
