package core

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipcore/sipreactor/dialog"
	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/metrics"
	"github.com/sipcore/sipreactor/parser"
	"github.com/sipcore/sipreactor/reactor"
	"github.com/sipcore/sipreactor/transaction"
)

// fakeSender records every serialized message handed to it, keyed by
// destination, standing in for the real UDP transport so these tests
// never touch the network - grounded on the transaction package's own
// fakeSender (transaction/engine_test.go).
type fakeSender struct {
	sent []sentMsg
}

type sentMsg struct {
	addr string
	data []byte
}

func (f *fakeSender) Send(addr string, data []byte) error {
	f.sent = append(f.sent, sentMsg{addr: addr, data: data})
	return nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return string(f.sent[len(f.sent)-1].data)
}

// newTestCore wires a Core around a fakeSender instead of a real UDP
// Transport, so the receive path can be driven directly with
// handleDatagram/handleRequest without binding a socket.
func newTestCore(t *testing.T) (*Core, *fakeSender) {
	t.Helper()
	transaction.SetTimers(5*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond)
	r := reactor.New()
	sender := &fakeSender{}
	rec := metrics.New(prometheus.NewRegistry())
	dialogs := dialog.NewTable()

	c := &Core{
		Reactor: r,
		Dialogs: dialogs,
		Metrics: rec,
	}
	c.Engine = transaction.NewEngine(r, sender, c, rec)
	return c, sender
}

func registerDatagram(branch string) []byte {
	msg := "REGISTER sip:example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=" + branch + "\r\n" +
		"From: <sip:a@example.com>;tag=ft1\r\n" +
		"To: <sip:a@example.com>\r\n" +
		"Call-ID: c1\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Contact: <sip:a@10.0.0.1>\r\n" +
		"Content-Length: 0\r\n\r\n"
	return []byte(msg)
}

func inviteDatagram(branch, callID string) []byte {
	msg := "INVITE sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=" + branch + "\r\n" +
		"From: <sip:alice@example.com>;tag=ft2\r\n" +
		"To: <sip:bob@example.com>\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Contact: <sip:alice@10.0.0.1:5070>\r\n" +
		"Content-Length: 0\r\n\r\n"
	return []byte(msg)
}

func byeDatagram(branch, callID, toTag, fromTag string) []byte {
	msg := "BYE sip:bob@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=" + branch + "\r\n" +
		"From: <sip:alice@example.com>;tag=" + fromTag + "\r\n" +
		"To: <sip:bob@example.com>;tag=" + toTag + "\r\n" +
		"Call-ID: " + callID + "\r\n" +
		"CSeq: 2 BYE\r\n" +
		"Content-Length: 0\r\n\r\n"
	return []byte(msg)
}

// TestRegisterGets200OK is spec.md section 8 scenario 1.
func TestRegisterGets200OK(t *testing.T) {
	c, sender := newTestCore(t)
	c.handleDatagram(registerDatagram("z9hG4bK-1"), "10.0.0.1:5060")

	require.Len(t, sender.sent, 1)
	resp := sender.last()
	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 200 OK"))
	assert.Contains(t, resp, "branch=z9hG4bK-1")
	assert.Contains(t, resp, "tag=ft1")
	assert.Contains(t, resp, "Call-ID: c1")
	assert.Contains(t, resp, "CSeq: 1 REGISTER")
	// To gains a generated tag distinct from the From tag.
	parsed, err := parser.Parse([]byte(resp))
	require.NoError(t, err)
	to, ok := parsed.(*message.Response).To()
	require.True(t, ok)
	tag, ok := to.Tag()
	require.True(t, ok)
	assert.NotEmpty(t, tag)
	assert.NotEqual(t, "ft1", tag)
}

// TestUnknownMethodGets501 is spec.md section 8 scenario 3.
func TestUnknownMethodGets501(t *testing.T) {
	c, sender := newTestCore(t)
	datagram := []byte("FROBNICATE sip:x@example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK-f\r\n" +
		"From: <sip:a@example.com>;tag=ft\r\n" +
		"To: <sip:x@example.com>\r\n" +
		"Call-ID: cf\r\n" +
		"CSeq: 1 FROBNICATE\r\n" +
		"Content-Length: 0\r\n\r\n")

	c.handleDatagram(datagram, "10.0.0.1:5060")
	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.last(), "SIP/2.0 501 Not Implemented"))
}

// TestStrayResponseIsDropped is spec.md section 8 scenario 5.
func TestStrayResponseIsDropped(t *testing.T) {
	c, sender := newTestCore(t)
	datagram := []byte("SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK-nonexistent\r\n" +
		"From: <sip:a@example.com>;tag=ft\r\n" +
		"To: <sip:b@example.com>;tag=tt\r\n" +
		"Call-ID: cx\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 0\r\n\r\n")

	c.handleDatagram(datagram, "10.0.0.1:5060")
	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, c.Engine.Count(transaction.ICT))
}

// TestRetransmitSuppression is spec.md section 8 scenario 4: the second
// identical INVITE must not create a new IST; the engine resends the
// stored 200 instead.
func TestRetransmitSuppression(t *testing.T) {
	c, sender := newTestCore(t)
	datagram := inviteDatagram("z9hG4bK-2", "c2")

	c.handleDatagram(datagram, "10.0.0.1:5060")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 1, c.Engine.Count(transaction.IST))

	c.handleDatagram(datagram, "10.0.0.1:5060")
	assert.Equal(t, 1, c.Engine.Count(transaction.IST))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, sender.sent[0].data, sender.sent[1].data)
}

// TestInviteAckByeFlow is spec.md section 8 scenario 2.
func TestInviteAckByeFlow(t *testing.T) {
	c, sender := newTestCore(t)
	c.handleDatagram(inviteDatagram("z9hG4bK-2", "c2"), "10.0.0.1:5060")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 1, c.Dialogs.Len())

	okResp, err := parser.Parse(sender.sent[0].data)
	require.NoError(t, err)
	to, _ := okResp.(*message.Response).To()
	toTag, _ := to.Tag()

	ack := []byte("ACK sip:alice@10.0.0.1:5070 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK-2ack\r\n" +
		"From: <sip:alice@example.com>;tag=ft2\r\n" +
		"To: <sip:bob@example.com>;tag=" + toTag + "\r\n" +
		"Call-ID: c2\r\n" +
		"CSeq: 1 ACK\r\n" +
		"Content-Length: 0\r\n\r\n")
	ackParsed, err := parser.Parse(ack)
	require.NoError(t, err)
	c.handleDatagram(ack, "10.0.0.1:5060")

	// ACK absorbed via the dialog table - no new response, no new
	// transaction, and the IST is now terminated (2xx retransmissions
	// stopped).
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 0, c.Engine.Count(transaction.IST))

	d, found := c.Dialogs.FindAsUAS(ackParsed.(*message.Request))
	require.True(t, found)
	assert.Equal(t, dialog.Confirmed, d.State)

	bye := byeDatagram("z9hG4bK-3", "c2", toTag, "ft2")
	c.handleDatagram(bye, "10.0.0.1:5060")

	require.Len(t, sender.sent, 2)
	assert.True(t, strings.HasPrefix(string(sender.sent[1].data), "SIP/2.0 200 OK"))
	assert.Equal(t, 0, c.Dialogs.Len())
}

func TestCancelWhileProceedingSends487AndOwnOK(t *testing.T) {
	transaction.SetTimers(5*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond)
	c, sender := newTestCore(t)

	uri, _ := message.ParseUri("sip:bob@example.com")
	req := message.NewRequest(message.INVITE, uri)
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", "z9hG4bK-cancel")})
	fromURI, _ := message.ParseUri("sip:alice@example.com")
	req.AppendHeader(message.NewFromHeader("", fromURI, message.NewParams().Add("tag", "ft")))
	toURI, _ := message.ParseUri("sip:bob@example.com")
	req.AppendHeader(message.NewToHeader("", toURI, message.NewParams()))
	callID := message.CallIDHeader("ccancel")
	req.AppendHeader(&callID)
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.INVITE})

	_, err := c.Engine.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)

	cancel := req.Clone()
	cancel.Method = message.CANCEL
	c.handleRequest(cancel, "127.0.0.1:5070")

	require.Len(t, sender.sent, 2)
	assert.True(t, strings.HasPrefix(string(sender.sent[0].data), "SIP/2.0 487"))
	assert.True(t, strings.HasPrefix(string(sender.sent[1].data), "SIP/2.0 200"))
}

func TestCancelAfterProceedingGetsNoResponseOn487(t *testing.T) {
	transaction.SetTimers(5*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond)
	c, sender := newTestCore(t)

	uri, _ := message.ParseUri("sip:bob@example.com")
	req := message.NewRequest(message.INVITE, uri)
	req.AppendHeader(&message.ViaHeader{Transport: "UDP", Host: "127.0.0.1", Port: 5070,
		Params: message.NewParams().Add("branch", "z9hG4bK-cancel2")})
	fromURI, _ := message.ParseUri("sip:alice@example.com")
	req.AppendHeader(message.NewFromHeader("", fromURI, message.NewParams().Add("tag", "ft")))
	toURI, _ := message.ParseUri("sip:bob@example.com")
	req.AppendHeader(message.NewToHeader("", toURI, message.NewParams()))
	callID := message.CallIDHeader("ccancel2")
	req.AppendHeader(&callID)
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.INVITE})

	tx, err := c.Engine.CreateIST(req, "127.0.0.1:5070")
	require.NoError(t, err)
	resp := parser.InitResponse(req, message.StatusOK, "OK", nil)
	c.Engine.Respond(tx, resp)
	require.Len(t, sender.sent, 1)

	cancel := req.Clone()
	cancel.Method = message.CANCEL
	c.handleRequest(cancel, "127.0.0.1:5070")

	require.Len(t, sender.sent, 2)
	assert.True(t, strings.HasPrefix(string(sender.sent[1].data), "SIP/2.0 200"))
}
