package message

import (
	"io"
	"strings"
)

// Request is a SIP request (RFC 3261 7.1): method, Request-URI and
// headers. Mirrors the teacher's sip.Request shape, trimmed to the
// fields this engine touches.
type Request struct {
	base
	Method    RequestMethod
	Recipient Uri

	// raddr is the resolved destination (host:port) for this request,
	// set by the transport/engine layer from the Request-URI or, for an
	// ACK to a non-2xx, copied from the original INVITE.
	raddr string
}

func NewRequest(method RequestMethod, recipient Uri) *Request {
	return &Request{
		base:      base{headers: newHeaders(), SipVersion: "SIP/2.0"},
		Method:    method,
		Recipient: recipient,
	}
}

func (r *Request) IsInvite() bool { return r.Method == INVITE }
func (r *Request) IsAck() bool    { return r.Method == ACK }
func (r *Request) IsCancel() bool { return r.Method == CANCEL }

func (r *Request) StartLine() string {
	var b strings.Builder
	r.StartLineWrite(&b)
	return b.String()
}

func (r *Request) StartLineWrite(w io.StringWriter) {
	w.WriteString(string(r.Method))
	w.WriteString(" ")
	r.Recipient.StringWrite(w)
	w.WriteString(" ")
	w.WriteString(r.SipVersion)
}

func (r *Request) String() string {
	var b strings.Builder
	r.StringWrite(&b)
	return b.String()
}

func (r *Request) StringWrite(w io.StringWriter) {
	r.StartLineWrite(w)
	w.WriteString("\r\n")
	r.headers.StringWrite(w)
	w.WriteString("\r\n")
	if len(r.body) > 0 {
		w.WriteString(string(r.body))
	}
}

func (r *Request) Short() string {
	callID := ""
	if h, ok := r.CallID(); ok {
		callID = string(*h)
	}
	return shortMessage(r.StartLine(), callID)
}

func (r *Request) RemoteAddr() string { return r.raddr }
func (r *Request) SetRemoteAddr(a string) { r.raddr = a }

// Clone performs a deep-enough copy that the clone can be mutated (e.g.
// to build an ACK or a retransmission) without aliasing the original's
// header slice - spec.md's "cloning produces an owned independent copy".
func (r *Request) Clone() *Request {
	n := NewRequest(r.Method, *r.Recipient.Clone())
	n.SipVersion = r.SipVersion
	for _, h := range r.cloneOrder() {
		n.AppendHeader(h)
	}
	body := make([]byte, len(r.body))
	copy(body, r.body)
	n.body = body
	n.src = r.src
	n.dest = r.dest
	n.raddr = r.raddr
	return n
}
