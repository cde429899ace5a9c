package transaction

import "time"

// RFC 3261 17 timer durations, grounded on the teacher's SetTimers
// (sip/transaction.go). T1/T2/T4 are the tunable base values; the rest,
// except TimerD (fixed at 32s), are derived and not expected to be set
// independently.
var (
	T1 = 500 * time.Millisecond
	T2 = 4 * time.Second
	T4 = 5 * time.Second

	TimerA time.Duration // ICT request retransmit, doubles each fire, starts at T1
	TimerB time.Duration // ICT give-up waiting for any final response, 64*T1
	TimerD time.Duration // ICT wait in Completed for late retransmitted final responses
	TimerE time.Duration // NICT request retransmit, doubles up to T2, starts at T1
	TimerF time.Duration // NICT give-up, 64*T1
	TimerG time.Duration // IST non-2xx response retransmit, doubles up to T2, starts at T1
	TimerH time.Duration // IST give-up waiting for ACK to a non-2xx final, 64*T1
	TimerI time.Duration // IST wait in Confirmed absorbing late ACKs, T4
	TimerJ time.Duration // NIST wait in Completed absorbing retransmits, 64*T1
	Timer2xx time.Duration // IST 2xx retransmit interval while awaiting ACK (spec.md 4.3 extension)
	TimerAckWait time.Duration // IST cap on how long a 2xx may go unconfirmed before the transaction gives up (resource hygiene, not named in RFC 3261)
)

func init() {
	SetTimers(T1, T2, T4)
}

// SetTimers recomputes every derived timer from T1/T2/T4 - tests use this
// to shrink the table without duplicating the derivation. TimerD does not
// depend on them and is always reset to 32s.
func SetTimers(t1, t2, t4 time.Duration) {
	T1, T2, T4 = t1, t2, t4
	TimerA = T1
	TimerB = 64 * T1
	TimerD = 32 * time.Second
	TimerE = T1
	TimerF = 64 * T1
	TimerG = T1
	TimerH = 64 * T1
	TimerI = T4
	TimerJ = 64 * T1
	Timer2xx = T1
	TimerAckWait = 64 * T1
}
