package message

// NewAckForNon2xx builds the ACK that absorbs a non-2xx final response on
// an INVITE client transaction (RFC 3261 17.1.1.3). This ACK is part of
// the same transaction, so it reuses the INVITE's branch - unlike the
// ACK for a 2xx, which is a separate transaction handled by the dialog
// layer (spec.md 4.3 edge cases). Grounded on the teacher's
// newAckRequestNon2xx (sip/request.go).
func NewAckForNon2xx(invite *Request, resp *Response) *Request {
	ack := NewRequest(ACK, invite.Recipient)
	ack.SipVersion = invite.SipVersion

	if h, ok := invite.Via(); ok {
		ack.AppendHeader(h.Clone())
	}
	CopyHeaders("Route", invite, ack)
	mf := MaxForwardsHeader(70)
	ack.AppendHeader(&mf)

	if h, ok := invite.From(); ok {
		ack.AppendHeader(h.Clone())
	}
	if h, ok := resp.To(); ok {
		ack.AppendHeader(h.Clone())
	} else if h, ok := invite.To(); ok {
		ack.AppendHeader(h.Clone())
	}
	if h, ok := invite.CallID(); ok {
		ack.AppendHeader(h.Clone())
	}
	if h, ok := invite.CSeq(); ok {
		clone := h.Clone().(*CSeqHeader)
		clone.MethodName = ACK
		ack.AppendHeader(clone)
	}

	ack.SetSource(invite.Source())
	ack.raddr = invite.raddr
	return ack
}

// NewCancelRequest builds the CANCEL for a still-pending INVITE, copying
// Via, Route, From, To, Call-ID unchanged and setting CSeq's method to
// CANCEL (RFC 3261 9.1). Grounded on the teacher's newCancelRequest.
func NewCancelRequest(invite *Request) *Request {
	cancel := NewRequest(CANCEL, invite.Recipient)
	cancel.SipVersion = invite.SipVersion

	if h, ok := invite.Via(); ok {
		cancel.AppendHeader(h.Clone())
	}
	CopyHeaders("Route", invite, cancel)
	mf := MaxForwardsHeader(70)
	cancel.AppendHeader(&mf)

	if h, ok := invite.From(); ok {
		cancel.AppendHeader(h.Clone())
	}
	if h, ok := invite.To(); ok {
		cancel.AppendHeader(h.Clone())
	}
	if h, ok := invite.CallID(); ok {
		cancel.AppendHeader(h.Clone())
	}
	if h, ok := invite.CSeq(); ok {
		clone := h.Clone().(*CSeqHeader)
		clone.MethodName = CANCEL
		cancel.AppendHeader(clone)
	}

	cancel.SetSource(invite.Source())
	cancel.SetDestination(invite.Destination())
	return cancel
}
