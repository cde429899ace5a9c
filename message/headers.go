package message

import (
	"io"
	"strconv"
	"strings"
)

// Header is a single SIP header line.
type Header interface {
	Name() string
	Value() string
	String() string
	StringWrite(w io.StringWriter)
	Clone() Header
}

// ViaHeader models the top and subsequent Via header field values.
type ViaHeader struct {
	Transport string
	Host      string
	Port      int
	Params    Params
}

func (h *ViaHeader) Name() string { return "Via" }
func (h *ViaHeader) Value() string {
	var b strings.Builder
	h.valueWrite(&b)
	return b.String()
}
func (h *ViaHeader) valueWrite(w io.StringWriter) {
	w.WriteString("SIP/2.0/")
	w.WriteString(h.Transport)
	w.WriteString(" ")
	w.WriteString(h.Host)
	if h.Port > 0 {
		w.WriteString(":")
		w.WriteString(strconv.Itoa(h.Port))
	}
	h.Params.StringWrite(w)
}
func (h *ViaHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}
func (h *ViaHeader) StringWrite(w io.StringWriter) {
	w.WriteString("Via: ")
	h.valueWrite(w)
}
func (h *ViaHeader) Clone() Header {
	n := *h
	n.Params = h.Params.Clone()
	return &n
}
func (h *ViaHeader) Branch() (string, bool) { return h.Params.Get("branch") }

// FromHeader / ToHeader share shape: display-name, address, tag.
type addressHeader struct {
	name        string
	DisplayName string
	Address     Uri
	Params      Params
}

func (h *addressHeader) Name() string { return h.name }
func (h *addressHeader) Value() string {
	var b strings.Builder
	h.valueWrite(&b)
	return b.String()
}
func (h *addressHeader) valueWrite(w io.StringWriter) {
	if h.DisplayName != "" {
		w.WriteString("\"")
		w.WriteString(h.DisplayName)
		w.WriteString("\" ")
	}
	w.WriteString("<")
	h.Address.StringWrite(w)
	w.WriteString(">")
	h.Params.StringWrite(w)
}
func (h *addressHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}
func (h *addressHeader) StringWrite(w io.StringWriter) {
	w.WriteString(h.name)
	w.WriteString(": ")
	h.valueWrite(w)
}
func (h *addressHeader) Tag() (string, bool) { return h.Params.Get("tag") }
func (h *addressHeader) SetTag(tag string)   { h.Params = h.Params.Add("tag", tag) }

type FromHeader struct{ addressHeader }
type ToHeader struct{ addressHeader }

func NewFromHeader(display string, addr Uri, params Params) *FromHeader {
	return &FromHeader{addressHeader{name: "From", DisplayName: display, Address: addr, Params: params}}
}
func NewToHeader(display string, addr Uri, params Params) *ToHeader {
	return &ToHeader{addressHeader{name: "To", DisplayName: display, Address: addr, Params: params}}
}
func (h *FromHeader) Clone() Header {
	n := *h
	n.Address = *h.Address.Clone()
	n.Params = h.Params.Clone()
	return &n
}
func (h *ToHeader) Clone() Header {
	n := *h
	n.Address = *h.Address.Clone()
	n.Params = h.Params.Clone()
	return &n
}

// ContactHeader - Contact: <sip:...>;params
type ContactHeader struct{ addressHeader }

func NewContactHeader(display string, addr Uri, params Params) *ContactHeader {
	return &ContactHeader{addressHeader{name: "Contact", DisplayName: display, Address: addr, Params: params}}
}
func (h *ContactHeader) Clone() Header {
	n := *h
	n.Address = *h.Address.Clone()
	n.Params = h.Params.Clone()
	return &n
}

// RouteHeader / RecordRouteHeader - Route: <sip:...>
type RouteHeader struct{ addressHeader }
type RecordRouteHeader struct{ addressHeader }

func NewRouteHeader(addr Uri) *RouteHeader {
	return &RouteHeader{addressHeader{name: "Route", Address: addr, Params: NewParams()}}
}
func NewRecordRouteHeader(addr Uri) *RecordRouteHeader {
	return &RecordRouteHeader{addressHeader{name: "Record-Route", Address: addr, Params: NewParams()}}
}
func (h *RouteHeader) Clone() Header {
	n := *h
	n.Address = *h.Address.Clone()
	n.Params = h.Params.Clone()
	return &n
}
func (h *RecordRouteHeader) Clone() Header {
	n := *h
	n.Address = *h.Address.Clone()
	n.Params = h.Params.Clone()
	return &n
}

// CallIDHeader - Call-ID: opaque string
type CallIDHeader string

func (h *CallIDHeader) Name() string  { return "Call-ID" }
func (h *CallIDHeader) Value() string { return string(*h) }
func (h *CallIDHeader) String() string {
	return "Call-ID: " + string(*h)
}
func (h *CallIDHeader) StringWrite(w io.StringWriter) {
	w.WriteString("Call-ID: ")
	w.WriteString(string(*h))
}
func (h *CallIDHeader) Clone() Header {
	n := *h
	return &n
}

// CSeqHeader - CSeq: <seqno> <method>
type CSeqHeader struct {
	SeqNo      uint32
	MethodName RequestMethod
}

func (h *CSeqHeader) Name() string  { return "CSeq" }
func (h *CSeqHeader) Value() string { return h.String()[len("CSeq: "):] }
func (h *CSeqHeader) String() string {
	var b strings.Builder
	h.StringWrite(&b)
	return b.String()
}
func (h *CSeqHeader) StringWrite(w io.StringWriter) {
	w.WriteString("CSeq: ")
	w.WriteString(strconv.FormatUint(uint64(h.SeqNo), 10))
	w.WriteString(" ")
	w.WriteString(string(h.MethodName))
}
func (h *CSeqHeader) Clone() Header {
	n := *h
	return &n
}

// ContentLengthHeader - Content-Length: N
type ContentLengthHeader int

func (h *ContentLengthHeader) Name() string  { return "Content-Length" }
func (h *ContentLengthHeader) Value() string { return strconv.Itoa(int(*h)) }
func (h *ContentLengthHeader) String() string {
	return "Content-Length: " + strconv.Itoa(int(*h))
}
func (h *ContentLengthHeader) StringWrite(w io.StringWriter) {
	w.WriteString("Content-Length: ")
	w.WriteString(strconv.Itoa(int(*h)))
}
func (h *ContentLengthHeader) Clone() Header {
	n := *h
	return &n
}

// ContentTypeHeader - Content-Type: application/sdp
type ContentTypeHeader string

func (h *ContentTypeHeader) Name() string  { return "Content-Type" }
func (h *ContentTypeHeader) Value() string { return string(*h) }
func (h *ContentTypeHeader) String() string {
	return "Content-Type: " + string(*h)
}
func (h *ContentTypeHeader) StringWrite(w io.StringWriter) {
	w.WriteString("Content-Type: ")
	w.WriteString(string(*h))
}
func (h *ContentTypeHeader) Clone() Header {
	n := *h
	return &n
}

// MaxForwardsHeader - Max-Forwards: 70
type MaxForwardsHeader int

func (h *MaxForwardsHeader) Name() string  { return "Max-Forwards" }
func (h *MaxForwardsHeader) Value() string { return strconv.Itoa(int(*h)) }
func (h *MaxForwardsHeader) String() string {
	return "Max-Forwards: " + strconv.Itoa(int(*h))
}
func (h *MaxForwardsHeader) StringWrite(w io.StringWriter) {
	w.WriteString("Max-Forwards: ")
	w.WriteString(strconv.Itoa(int(*h)))
}
func (h *MaxForwardsHeader) Clone() Header {
	n := *h
	return &n
}

// GenericHeader covers every header this core doesn't need structural
// access to (Contact params aside, e.g. Timestamp, User-Agent, Expires).
type GenericHeader struct {
	HeaderName  string
	HeaderValue string
}

func NewHeader(name, value string) *GenericHeader {
	return &GenericHeader{HeaderName: name, HeaderValue: value}
}
func (h *GenericHeader) Name() string  { return h.HeaderName }
func (h *GenericHeader) Value() string { return h.HeaderValue }
func (h *GenericHeader) String() string {
	return h.HeaderName + ": " + h.HeaderValue
}
func (h *GenericHeader) StringWrite(w io.StringWriter) {
	w.WriteString(h.HeaderName)
	w.WriteString(": ")
	w.WriteString(h.HeaderValue)
}
func (h *GenericHeader) Clone() Header {
	n := *h
	return &n
}
