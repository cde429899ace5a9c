package parser

import "github.com/sipcore/sipreactor/message"

// Default is the RandomSource every package in this module uses unless
// a test substitutes a deterministic one.
var Default = RandomSource{}

// InitRequest is the "init_request()" constructor from spec.md 6.2.
func InitRequest(method message.RequestMethod, recipient message.Uri) *message.Request {
	return message.NewRequest(method, recipient)
}

// InitResponse is the "init_response(template_request, status_code)"
// constructor from spec.md 6.2.
func InitResponse(template *message.Request, statusCode message.StatusCode, reason string, body []byte) *message.Response {
	return message.NewResponseFromRequest(template, statusCode, reason, body, Default)
}

// Serialize is "message_to_str(msg)" from spec.md 6.2.
func Serialize(msg message.Message) []byte {
	return []byte(msg.String())
}
