package parser

import (
	"fmt"
	"strings"

	"github.com/sipcore/sipreactor/message"
)

// parseAddressValue parses the "name-addr" / "addr-spec" production
// shared by From, To, Contact, Route and Record-Route:
//
//	[ display-name ] ( "<" addr-spec ">" / addr-spec ) *( ";" generic-param )
func parseAddressValue(value string) (display string, addr message.Uri, params message.Params, err error) {
	value = strings.TrimSpace(value)
	params = message.NewParams()

	if idx := strings.IndexByte(value, '"'); idx == 0 {
		end := strings.IndexByte(value[1:], '"')
		if end < 0 {
			return "", addr, nil, fmt.Errorf("unterminated display name in %q", value)
		}
		display = value[1 : end+1]
		value = strings.TrimSpace(value[end+2:])
	}

	if strings.HasPrefix(value, "<") {
		end := strings.IndexByte(value, '>')
		if end < 0 {
			return "", addr, nil, fmt.Errorf("unterminated address in %q", value)
		}
		uriStr := value[1:end]
		rest := strings.TrimSpace(value[end+1:])
		u, perr := message.ParseUri(uriStr)
		if perr != nil {
			return "", addr, nil, perr
		}
		addr = u
		params = parseGenericParams(rest)
		return display, addr, params, nil
	}

	// Bare addr-spec: params after ';' belong to the URI itself unless a
	// display name was present, in which case we keep parity with the
	// <addr> form by leaving them on the URI (RFC 3261 20.10 examples
	// never mix bare addr-spec with header params in this codebase).
	u, perr := message.ParseUri(value)
	if perr != nil {
		return "", addr, nil, perr
	}
	return display, u, message.NewParams(), nil
}

func parseGenericParams(s string) message.Params {
	params := message.NewParams()
	s = strings.TrimPrefix(strings.TrimSpace(s), ";")
	if s == "" {
		return params
	}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			params = params.Add(kv[0], kv[1])
		} else {
			params = params.Add(kv[0], "")
		}
	}
	return params
}
