package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/parser"
	"github.com/sipcore/sipreactor/reactor"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) Send(addr string, data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}

type recordingHooks struct {
	NoopHooks
	accepted     int
	success      int
	confirmed    int
	terminated   int
	timedOut     int
	canceled     int
	canceledLate int
}

func (h *recordingHooks) OnInviteAccepted(*Transaction, *message.Response)       { h.accepted++ }
func (h *recordingHooks) OnInviteSuccess(*Transaction, *message.Response)        { h.success++ }
func (h *recordingHooks) OnAckConfirmed(*Transaction, *message.Request)          { h.confirmed++ }
func (h *recordingHooks) OnCancelMatched(*Transaction, *message.Request)         { h.canceled++ }
func (h *recordingHooks) OnCancelNotInProceeding(*Transaction, *message.Request) { h.canceledLate++ }
func (h *recordingHooks) OnTerminated(*Transaction)                              { h.terminated++ }
func (h *recordingHooks) OnTimeout(*Transaction)                                 { h.timedOut++ }

func testInvite(t *testing.T, branch string) *message.Request {
	t.Helper()
	uri, err := message.ParseUri("sip:bob@example.com")
	require.NoError(t, err)
	req := message.NewRequest(message.INVITE, uri)
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", branch)})
	fromURI, _ := message.ParseUri("sip:alice@example.com")
	req.AppendHeader(message.NewFromHeader("Alice", fromURI, message.NewParams().Add("tag", "fromtag")))
	toURI, _ := message.ParseUri("sip:bob@example.com")
	req.AppendHeader(message.NewToHeader("Bob", toURI, message.NewParams()))
	callID := message.CallIDHeader("call-1@127.0.0.1")
	req.AppendHeader(&callID)
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.INVITE})
	return req
}

// newTestEngine wires an Engine to a Reactor that is never run as a
// background loop; the test goroutine plays the role of the reactor
// goroutine by calling RunPending after sleeping past a timer.
func newTestEngine(t *testing.T) (*Engine, *fakeSender, *recordingHooks) {
	t.Helper()
	SetTimers(5*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond)
	r := reactor.New()
	sender := &fakeSender{}
	hooks := &recordingHooks{}
	e := NewEngine(r, sender, hooks, nil)
	return e, sender, hooks
}

func TestISTAcceptThenAckConfirms(t *testing.T) {
	e, sender, hooks := newTestEngine(t)
	req := testInvite(t, parser.Default.NewBranch())

	tx, found := e.HandleIncomingRequest(req)
	require.False(t, found)

	tx, err := e.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)
	assert.Equal(t, "proceeding", tx.State())

	resp := message.NewResponseFromRequest(req, message.StatusOK, "OK", nil, parser.Default)
	e.Respond(tx, resp)
	assert.Equal(t, "accepted", tx.State())
	assert.Equal(t, 1, hooks.accepted)
	assert.Equal(t, 1, len(sender.sent))

	ack := req.Clone()
	ack.Method = message.ACK
	// a 2xx ACK carries a fresh branch - it will not match this IST by key.
	via, _ := ack.Via()
	via.Params = via.Params.Add("branch", parser.Default.NewBranch())
	_, found = e.HandleIncomingRequest(ack)
	assert.False(t, found)

	e.ConfirmAck(tx)
	assert.True(t, tx.Terminated())
	assert.Equal(t, 1, hooks.terminated)
	assert.Equal(t, 0, e.Count(IST))
}

func TestISTNon2xxAckAbsorbedByBranch(t *testing.T) {
	e, _, hooks := newTestEngine(t)
	req := testInvite(t, parser.Default.NewBranch())

	tx, err := e.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)

	resp := message.NewResponseFromRequest(req, 486, "Busy Here", nil, parser.Default)
	e.Respond(tx, resp)
	assert.Equal(t, "completed", tx.State())

	ack := req.Clone()
	ack.Method = message.ACK
	matched, found := e.HandleIncomingRequest(ack)
	require.True(t, found)
	assert.Equal(t, "confirmed", matched.State())
	assert.Equal(t, 1, hooks.confirmed)
}

func TestISTCancelMatchedWhileProceeding(t *testing.T) {
	e, _, hooks := newTestEngine(t)
	req := testInvite(t, parser.Default.NewBranch())
	_, err := e.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)

	cancel := req.Clone()
	cancel.Method = message.CANCEL
	tx, found := e.HandleIncomingRequest(cancel)
	require.True(t, found)
	assert.Equal(t, 1, hooks.canceled)
	assert.Equal(t, "proceeding", tx.State())
}

// TestISTCancelAfterProceedingSkips487 covers SPEC_FULL.md's supplemented
// CANCEL behavior: once the IST has left Proceeding (a final response is
// already in flight), a late CANCEL must not trigger a second, spurious
// 487 - OnCancelNotInProceeding fires instead of OnCancelMatched.
func TestISTCancelAfterProceedingSkips487(t *testing.T) {
	e, _, hooks := newTestEngine(t)
	req := testInvite(t, parser.Default.NewBranch())
	tx, err := e.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)

	resp := message.NewResponseFromRequest(req, message.StatusOK, "OK", nil, parser.Default)
	e.Respond(tx, resp)
	assert.Equal(t, "accepted", tx.State())

	cancel := req.Clone()
	cancel.Method = message.CANCEL
	matched, found := e.HandleIncomingRequest(cancel)
	require.True(t, found)
	assert.Equal(t, tx, matched)
	assert.Equal(t, 0, hooks.canceled)
	assert.Equal(t, 1, hooks.canceledLate)
}

// TestNICTRetransmitRearmsAcrossProceeding is the regression test for the
// Timer E event-name mismatch: a provisional response moving the NICT
// from Trying to Proceeding must not stop retransmission.
func TestNICTRetransmitRearmsAcrossProceeding(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	uri, _ := message.ParseUri("sip:registrar@example.com")
	req := message.NewRequest(message.REGISTER, uri)
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", parser.Default.NewBranch())})
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.REGISTER})

	tx, err := e.CreateNICT(req, "127.0.0.1:5060")
	require.NoError(t, err)

	provisional := message.NewResponseFromRequest(req, 100, "Trying", nil, parser.Default)
	_, found := e.HandleResponse(provisional)
	require.True(t, found)
	assert.Equal(t, "proceeding", tx.State())

	before := len(sender.sent)
	time.Sleep(30 * time.Millisecond)
	e.reactor.RunPending()
	assert.Greater(t, len(sender.sent), before)
}

func TestNICTRetransmitsUntilFinal(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	uri, _ := message.ParseUri("sip:registrar@example.com")
	req := message.NewRequest(message.REGISTER, uri)
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", parser.Default.NewBranch())})
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.REGISTER})

	tx, err := e.CreateNICT(req, "127.0.0.1:5060")
	require.NoError(t, err)
	assert.Equal(t, "trying", tx.State())
	assert.Equal(t, 1, len(sender.sent))

	time.Sleep(30 * time.Millisecond)
	e.reactor.RunPending()
	assert.GreaterOrEqual(t, len(sender.sent), 2)
}

func TestServerTxRetransmitsLastResponse(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	uri, _ := message.ParseUri("sip:registrar@example.com")
	req := message.NewRequest(message.REGISTER, uri)
	branch := parser.Default.NewBranch()
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", branch)})
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.REGISTER})

	tx, err := e.CreateNIST(req, "127.0.0.1:5070")
	require.NoError(t, err)
	resp := message.NewResponseFromRequest(req, message.StatusOK, "OK", nil, parser.Default)
	e.Respond(tx, resp)
	assert.Equal(t, "completed", tx.State())
	assert.Equal(t, 1, len(sender.sent))

	retry := req.Clone()
	matched, found := e.HandleIncomingRequest(retry)
	require.True(t, found)
	assert.Equal(t, tx, matched)
	assert.Equal(t, 2, len(sender.sent))
}
