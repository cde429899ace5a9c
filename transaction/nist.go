package transaction

import (
	"context"

	"github.com/looplab/fsm"
)

// newNISTFSM builds the non-INVITE server transaction state machine -
// RFC 3261 17.2.2.
func newNISTFSM(tx *Transaction) *fsm.FSM {
	return fsm.NewFSM(
		"trying",
		fsm.Events{
			{Name: "provisional", Src: []string{"trying", "proceeding"}, Dst: "proceeding"},
			{Name: "final", Src: []string{"trying", "proceeding"}, Dst: "completed"},
			{Name: "retransmit_completed", Src: []string{"completed"}, Dst: "completed"},
			{Name: "timer_j", Src: []string{"completed"}, Dst: "terminated"},
			{Name: "transport_err", Src: []string{"trying", "proceeding", "completed"}, Dst: "terminated"},
		},
		fsm.Callbacks{
			"enter_completed": func(_ context.Context, e *fsm.Event) {
				switch e.Event {
				case "final":
					tx.armWait(TimerJ, "timer_j")
				}
			},
			// looplab/fsm runs no enter_ callback on a self-transition.
			"after_retransmit_completed": func(_ context.Context, e *fsm.Event) {
				tx.send(tx.lastResponse)
			},
			"enter_terminated": func(_ context.Context, e *fsm.Event) {
				tx.cancelAllTimers()
			},
		},
	)
}
