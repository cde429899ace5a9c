package message

import (
	"io"
	"strconv"
	"strings"
)

type StatusCode int

const (
	StatusTrying               StatusCode = 100
	StatusRinging              StatusCode = 180
	StatusOK                   StatusCode = 200
	StatusBadRequest           StatusCode = 400
	StatusRequestTerminated    StatusCode = 487
	StatusNotImplemented       StatusCode = 501
)

func (s StatusCode) IsProvisional() bool { return s >= 100 && s < 200 }
func (s StatusCode) IsSuccess() bool     { return s >= 200 && s < 300 }

// Response is a SIP response (RFC 3261 7.2): status line plus headers.
type Response struct {
	base
	StatusCode StatusCode
	Reason     string
}

func NewResponse(statusCode StatusCode, reason string) *Response {
	return &Response{
		base:       base{headers: newHeaders(), SipVersion: "SIP/2.0"},
		StatusCode: statusCode,
		Reason:     reason,
	}
}

func (r *Response) IsProvisional() bool { return r.StatusCode.IsProvisional() }
func (r *Response) IsSuccess() bool     { return r.StatusCode.IsSuccess() }

func (r *Response) StartLine() string {
	var b strings.Builder
	r.StartLineWrite(&b)
	return b.String()
}

func (r *Response) StartLineWrite(w io.StringWriter) {
	w.WriteString(r.SipVersion)
	w.WriteString(" ")
	w.WriteString(strconv.Itoa(int(r.StatusCode)))
	w.WriteString(" ")
	w.WriteString(r.Reason)
}

func (r *Response) String() string {
	var b strings.Builder
	r.StringWrite(&b)
	return b.String()
}

func (r *Response) StringWrite(w io.StringWriter) {
	r.StartLineWrite(w)
	w.WriteString("\r\n")
	r.headers.StringWrite(w)
	w.WriteString("\r\n")
	if len(r.body) > 0 {
		w.WriteString(string(r.body))
	}
}

func (r *Response) Short() string {
	callID := ""
	if h, ok := r.CallID(); ok {
		callID = string(*h)
	}
	return shortMessage(r.StartLine(), callID)
}

func (r *Response) Clone() *Response {
	n := NewResponse(r.StatusCode, r.Reason)
	n.SipVersion = r.SipVersion
	for _, h := range r.cloneOrder() {
		n.AppendHeader(h)
	}
	body := make([]byte, len(r.body))
	copy(body, r.body)
	n.body = body
	n.src = r.src
	n.dest = r.dest
	return n
}

// TagSource generates a To-tag when the template request's To header
// carries none (the request came from a UAC that hasn't dialog-
// established yet). Injected so the message package stays independent
// of the random source (parser.RandomSource owns entropy per spec.md 6.2).
type TagSource interface {
	NewTag() string
}

// NewResponseFromRequest builds a response per RFC 3261 8.2.6: copies
// Via unchanged (full sequence), From verbatim, To with a generated tag
// if absent (not for 100 Trying), clones CSeq and Call-ID, and mirrors
// Record-Route for the dialog route set. It adds no Max-Forwards and no
// User-Agent header. Mirrors the teacher's
// sip.NewResponseFromRequest (sip/response.go).
func NewResponseFromRequest(req *Request, statusCode StatusCode, reason string, body []byte, tags TagSource) *Response {
	res := NewResponse(statusCode, reason)
	res.SipVersion = req.SipVersion

	CopyHeaders("Record-Route", req, res)
	CopyHeaders("Via", req, res)

	if h, ok := req.From(); ok {
		res.AppendHeader(h.Clone())
	}
	if h, ok := req.To(); ok {
		clone := h.Clone().(*ToHeader)
		if _, hasTag := clone.Tag(); !hasTag && statusCode != StatusTrying {
			clone.SetTag(tags.NewTag())
		}
		res.AppendHeader(clone)
	}
	if h, ok := req.CallID(); ok {
		res.AppendHeader(h.Clone())
	}
	if h, ok := req.CSeq(); ok {
		res.AppendHeader(h.Clone())
	}

	res.SetBody(body)
	res.SetDestination(req.Source())
	return res
}
