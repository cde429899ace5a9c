// Package parser implements the external collaborator contract spec.md
// section 6.2 names: turning a byte buffer into a structured
// message.Message, and back. The full SIP/ABNF grammar (token rules,
// generic parameter escaping, SDP bodies) is out of this core's scope;
// this implementation gives structured types to the header set spec.md
// section 3 requires (Via, From, To, Call-ID, CSeq, Contact, Route/
// Record-Route, Content-Length) plus Content-Type and Max-Forwards, with
// generic pass-through for everything else.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/sipcoreerr"
)

// Parse converts a raw datagram into a message.Request or
// message.Response. Mirrors the teacher's Parser.ParseSIP
// (sip/parser.go) contract.
func Parse(data []byte) (message.Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty datagram: %w", sipcoreerr.ErrNetworkProblem)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, len(data)+1), len(data)+1)
	if !scanner.Scan() {
		return nil, fmt.Errorf("missing start line: %w", sipcoreerr.ErrNetworkProblem)
	}
	startLine := strings.TrimRight(scanner.Text(), "\r")

	var msg message.Message
	var err error
	if strings.HasPrefix(startLine, "SIP/2.0") {
		msg, err = parseStatusLine(startLine)
	} else {
		msg, err = parseRequestLine(startLine)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), sipcoreerr.ErrNetworkProblem)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		h, err := parseHeaderLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", err.Error(), sipcoreerr.ErrNetworkProblem)
		}
		msg.AppendHeader(h)
	}

	// Recover the body by locating the blank-line boundary in the raw
	// buffer (bufio.Scanner already consumed it token by token).
	var bodyStart int
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		bodyStart = idx + 4
	} else if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		bodyStart = idx + 2
	} else {
		bodyStart = len(data)
	}
	if bodyStart < len(data) {
		body := make([]byte, len(data)-bodyStart)
		copy(body, data[bodyStart:])
		msg.SetBody(body)
	}

	return msg, nil
}

func parseRequestLine(line string) (message.Message, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed request line %q", line)
	}
	uri, err := message.ParseUri(parts[1])
	if err != nil {
		return nil, err
	}
	req := message.NewRequest(message.RequestMethod(parts[0]), uri)
	req.SipVersion = parts[2]
	return req, nil
}

func parseStatusLine(line string) (message.Message, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed status code %q", parts[1])
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	res := message.NewResponse(message.StatusCode(code), reason)
	res.SipVersion = parts[0]
	return res, nil
}

func parseHeaderLine(line string) (message.Header, error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return nil, fmt.Errorf("malformed header line %q", line)
	}
	name := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	canonical := canonicalHeaderName(name)

	switch canonical {
	case "Via":
		return parseVia(value)
	case "From":
		display, addr, params, err := parseAddressValue(value)
		if err != nil {
			return nil, err
		}
		return message.NewFromHeader(display, addr, params), nil
	case "To":
		display, addr, params, err := parseAddressValue(value)
		if err != nil {
			return nil, err
		}
		return message.NewToHeader(display, addr, params), nil
	case "Call-ID":
		h := message.CallIDHeader(value)
		return &h, nil
	case "CSeq":
		return parseCSeq(value)
	case "Contact":
		display, addr, params, err := parseAddressValue(value)
		if err != nil {
			return nil, err
		}
		return message.NewContactHeader(display, addr, params), nil
	case "Route":
		_, addr, _, err := parseAddressValue(value)
		if err != nil {
			return nil, err
		}
		return message.NewRouteHeader(addr), nil
	case "Record-Route":
		_, addr, _, err := parseAddressValue(value)
		if err != nil {
			return nil, err
		}
		return message.NewRecordRouteHeader(addr), nil
	case "Content-Length":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("malformed Content-Length %q", value)
		}
		h := message.ContentLengthHeader(n)
		return &h, nil
	case "Content-Type":
		h := message.ContentTypeHeader(value)
		return &h, nil
	case "Max-Forwards":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("malformed Max-Forwards %q", value)
		}
		h := message.MaxForwardsHeader(n)
		return &h, nil
	default:
		return message.NewHeader(name, value), nil
	}
}

func canonicalHeaderName(name string) string {
	switch strings.ToLower(name) {
	case "v", "via":
		return "Via"
	case "f", "from":
		return "From"
	case "t", "to":
		return "To"
	case "i", "call-id":
		return "Call-ID"
	case "cseq":
		return "CSeq"
	case "m", "contact":
		return "Contact"
	case "route":
		return "Route"
	case "record-route":
		return "Record-Route"
	case "l", "content-length":
		return "Content-Length"
	case "c", "content-type":
		return "Content-Type"
	case "max-forwards":
		return "Max-Forwards"
	}
	return name
}

func parseCSeq(value string) (message.Header, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed CSeq %q", value)
	}
	n, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed CSeq seqno %q", parts[0])
	}
	return &message.CSeqHeader{SeqNo: uint32(n), MethodName: message.RequestMethod(parts[1])}, nil
}
