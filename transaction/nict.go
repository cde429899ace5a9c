package transaction

import (
	"context"

	"github.com/looplab/fsm"
)

// newNICTFSM builds the non-INVITE client transaction state machine -
// RFC 3261 17.1.2.
func newNICTFSM(tx *Transaction) *fsm.FSM {
	return fsm.NewFSM(
		"trying",
		fsm.Events{
			{Name: "provisional", Src: []string{"trying", "proceeding"}, Dst: "proceeding"},
			{Name: "final", Src: []string{"trying", "proceeding"}, Dst: "completed"},
			{Name: "timer_e_trying", Src: []string{"trying"}, Dst: "trying"},
			{Name: "timer_e_proceeding", Src: []string{"proceeding"}, Dst: "proceeding"},
			{Name: "timer_f", Src: []string{"trying", "proceeding"}, Dst: "terminated"},
			{Name: "timer_k", Src: []string{"completed"}, Dst: "terminated"},
			{Name: "transport_err", Src: []string{"trying", "proceeding", "completed"}, Dst: "terminated"},
		},
		fsm.Callbacks{
			// looplab/fsm runs no enter_ callback on a self-transition, so the
			// Timer E events are handled after the event instead.
			"after_timer_e_trying": func(_ context.Context, e *fsm.Event) {
				tx.retransmitAndRearm("timer_e_trying")
			},
			"after_timer_e_proceeding": func(_ context.Context, e *fsm.Event) {
				tx.retransmitAndRearm("timer_e_proceeding")
			},
			"enter_proceeding": func(_ context.Context, e *fsm.Event) {
				switch e.Event {
				case "provisional":
					// The Timer E armed while we were in Trying still fires
					// the "timer_e_trying" event, which has no transition
					// from Proceeding - rearm it under the event name this
					// state accepts so retransmission continues across the
					// Trying->Proceeding move (RFC 3261 17.1.2.2).
					tx.armRetransmit(tx.retransmitInterval, "timer_e_proceeding")
				}
			},
			"enter_completed": func(_ context.Context, e *fsm.Event) {
				if e.Event != "final" {
					return
				}
				tx.cancelRetransmit()
				tx.cancelGiveUp()
				tx.armWait(TimerK, "timer_k")
			},
			"enter_terminated": func(_ context.Context, e *fsm.Event) {
				tx.cancelAllTimers()
				if e.Event == "timer_f" {
					tx.engine.hooks.OnTimeout(tx)
				}
			},
		},
	)
}

func (tx *Transaction) retransmitAndRearm(event string) {
	tx.engine.metrics.Retransmission(tx.kind)
	tx.send(tx.origin)
	next := tx.retransmitInterval * 2
	if next > T2 {
		next = T2
	}
	tx.retransmitInterval = next
	tx.armRetransmit(next, event)
}
