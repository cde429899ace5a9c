package message

import (
	"io"
	"strings"
)

type RequestMethod string

func (m RequestMethod) String() string { return string(m) }

const (
	INVITE    RequestMethod = "INVITE"
	ACK       RequestMethod = "ACK"
	CANCEL    RequestMethod = "CANCEL"
	BYE       RequestMethod = "BYE"
	REGISTER  RequestMethod = "REGISTER"
	OPTIONS   RequestMethod = "OPTIONS"
)

// RFC3261BranchMagicCookie prefixes every RFC-3261-compliant Via branch.
const RFC3261BranchMagicCookie = "z9hG4bK"

// Message is the immutable structural view shared by Request and
// Response: top Via, From/To (with tags), Call-ID, CSeq, route set and
// body, per spec.md section 3.
type Message interface {
	StartLine() string
	StartLineWrite(w io.StringWriter)
	String() string
	StringWrite(w io.StringWriter)
	Short() string

	Headers() []Header
	GetHeader(name string) Header
	GetHeaders(name string) []Header
	AppendHeader(h Header)
	PrependHeader(h Header)
	ReplaceHeader(h Header)
	RemoveHeader(name string)

	CallID() (*CallIDHeader, bool)
	Via() (*ViaHeader, bool)
	From() (*FromHeader, bool)
	To() (*ToHeader, bool)
	CSeq() (*CSeqHeader, bool)
	Contact() (*ContactHeader, bool)
	ContentLength() (*ContentLengthHeader, bool)
	Route() (*RouteHeader, bool)
	RecordRoute() (*RecordRouteHeader, bool)

	Body() []byte
	SetBody(b []byte)

	Source() string
	SetSource(s string)
	Destination() string
	SetDestination(s string)
}

// headers is embedded by Request/Response: it keeps header insertion
// order (for byte-identical round trips) plus direct pointers to the
// headers the engine/dialog layer inspects on every message.
type headers struct {
	order []Header

	via           *ViaHeader
	from          *FromHeader
	to            *ToHeader
	callID        *CallIDHeader
	cseq          *CSeqHeader
	contact       *ContactHeader
	contentLength *ContentLengthHeader
	route         *RouteHeader
	recordRoute   *RecordRouteHeader
}

func newHeaders() headers {
	return headers{order: make([]Header, 0, 10)}
}

func (hs *headers) Headers() []Header { return hs.order }

func (hs *headers) bind(h Header) {
	switch v := h.(type) {
	case *ViaHeader:
		if hs.via == nil {
			hs.via = v
		}
	case *FromHeader:
		hs.from = v
	case *ToHeader:
		hs.to = v
	case *CallIDHeader:
		hs.callID = v
	case *CSeqHeader:
		hs.cseq = v
	case *ContactHeader:
		hs.contact = v
	case *ContentLengthHeader:
		hs.contentLength = v
	case *RouteHeader:
		if hs.route == nil {
			hs.route = v
		}
	case *RecordRouteHeader:
		if hs.recordRoute == nil {
			hs.recordRoute = v
		}
	}
}

func (hs *headers) AppendHeader(h Header) {
	hs.order = append(hs.order, h)
	hs.bind(h)
}

func (hs *headers) PrependHeader(h Header) {
	hs.order = append([]Header{h}, hs.order...)
	hs.bind(h)
}

func (hs *headers) ReplaceHeader(h Header) {
	name := h.Name()
	for i, existing := range hs.order {
		if existing.Name() == name {
			hs.order[i] = h
			hs.bind(h)
			return
		}
	}
	hs.AppendHeader(h)
}

func (hs *headers) RemoveHeader(name string) {
	out := hs.order[:0]
	for _, h := range hs.order {
		if h.Name() == name {
			continue
		}
		out = append(out, h)
	}
	hs.order = out
}

func (hs *headers) GetHeader(name string) Header {
	for _, h := range hs.order {
		if strings.EqualFold(h.Name(), name) {
			return h
		}
	}
	return nil
}

func (hs *headers) GetHeaders(name string) []Header {
	var out []Header
	for _, h := range hs.order {
		if strings.EqualFold(h.Name(), name) {
			out = append(out, h)
		}
	}
	return out
}

func (hs *headers) StringWrite(w io.StringWriter) {
	for _, h := range hs.order {
		h.StringWrite(w)
		w.WriteString("\r\n")
	}
}

func (hs *headers) CallID() (*CallIDHeader, bool)         { return hs.callID, hs.callID != nil }
func (hs *headers) Via() (*ViaHeader, bool)                { return hs.via, hs.via != nil }
func (hs *headers) From() (*FromHeader, bool)              { return hs.from, hs.from != nil }
func (hs *headers) To() (*ToHeader, bool)                  { return hs.to, hs.to != nil }
func (hs *headers) CSeq() (*CSeqHeader, bool)              { return hs.cseq, hs.cseq != nil }
func (hs *headers) Contact() (*ContactHeader, bool)        { return hs.contact, hs.contact != nil }
func (hs *headers) ContentLength() (*ContentLengthHeader, bool) {
	return hs.contentLength, hs.contentLength != nil
}
func (hs *headers) Route() (*RouteHeader, bool)             { return hs.route, hs.route != nil }
func (hs *headers) RecordRoute() (*RecordRouteHeader, bool) { return hs.recordRoute, hs.recordRoute != nil }

func (hs *headers) cloneOrder() []Header {
	out := make([]Header, len(hs.order))
	for i, h := range hs.order {
		out[i] = h.Clone()
	}
	return out
}

// base carries the fields common to requests and responses: SIP
// version, body, and the source/destination network endpoints the
// transport layer stamps on receipt (spec.md's Message attributes).
type base struct {
	headers
	SipVersion string
	body       []byte
	src        string
	dest       string
}

func (b *base) Body() []byte     { return b.body }
func (b *base) SetBody(body []byte) {
	b.body = body
	length := ContentLengthHeader(len(body))
	if b.contentLength != nil {
		*b.contentLength = length
		return
	}
	b.AppendHeader(&length)
}
func (b *base) Source() string          { return b.src }
func (b *base) SetSource(s string)      { b.src = s }
func (b *base) Destination() string     { return b.dest }
func (b *base) SetDestination(s string) { b.dest = s }

// CopyHeaders clones every header with the given name from src onto dst,
// preserving order - used to build responses from their request.
func CopyHeaders(name string, src, dst Message) {
	for _, h := range src.GetHeaders(name) {
		dst.AppendHeader(h.Clone())
	}
}

func shortMessage(startLine, callID string) string {
	return startLine + " (Call-ID: " + callID + ")"
}
