package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sipcore/sipreactor/message"
)

// parseVia parses "SIP/2.0/UDP host[:port] *(;param)" - spec.md's top
// Via, the element transaction matching is keyed on.
func parseVia(value string) (*message.ViaHeader, error) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed Via %q", value)
	}
	protoParts := strings.Split(fields[0], "/")
	if len(protoParts) != 3 {
		return nil, fmt.Errorf("malformed Via protocol %q", fields[0])
	}
	transport := protoParts[2]

	hostPart := fields[1]
	params := message.NewParams()
	if idx := strings.IndexByte(hostPart, ';'); idx >= 0 {
		params = parseGenericParams(hostPart[idx:])
		hostPart = hostPart[:idx]
	}

	host := hostPart
	port := 0
	if idx := strings.LastIndexByte(hostPart, ':'); idx >= 0 {
		host = hostPart[:idx]
		if p, err := strconv.Atoi(hostPart[idx+1:]); err == nil {
			port = p
		}
	}

	return &message.ViaHeader{Transport: transport, Host: host, Port: port, Params: params}, nil
}
