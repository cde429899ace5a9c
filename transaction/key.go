package transaction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sipcore/sipreactor/message"
)

// keySeparator mirrors the teacher's TxSeperator.
const keySeparator = "__"

// Key identifies a transaction for lookup and retransmission matching.
// Only RFC 3261 magic-cookie branches are supported - every branch this
// module itself generates carries the cookie (parser.RandomSource), and
// section 6.1 treats a missing/non-compliant branch as a parse reject
// rather than something the engine needs to key around.
type Key string

// ServerKeyForRequest builds the key an incoming request matches against
// existing server transactions - RFC 3261 17.2.3, grounded on the
// teacher's makeServerTxKey. asMethod overrides the request's own method
// so a CANCEL can be matched against the INVITE server transaction it
// targets.
func ServerKeyForRequest(req *message.Request, asMethod message.RequestMethod) (Key, error) {
	via, ok := req.Via()
	if !ok {
		return "", fmt.Errorf("transaction: request has no Via")
	}
	branch, hasBranch := via.Params.Get("branch")
	if !hasBranch || !strings.HasPrefix(branch, message.RFC3261BranchMagicCookie) ||
		strings.TrimPrefix(branch, message.RFC3261BranchMagicCookie) == "" {
		return "", fmt.Errorf("transaction: request has no RFC3261 branch")
	}

	method := req.Method
	if method == message.ACK {
		method = message.INVITE
	}
	if asMethod != "" {
		method = asMethod
	}

	var b strings.Builder
	b.WriteString(branch)
	b.WriteString(keySeparator)
	b.WriteString(via.Host)
	b.WriteString(keySeparator)
	b.WriteString(strconv.Itoa(via.Port))
	b.WriteString(keySeparator)
	b.WriteString(string(method))
	return Key(b.String()), nil
}

// ClientKeyForRequest builds the key a client transaction is filed under,
// and the key a response must reproduce (via its top Via + CSeq) to match
// it - RFC 3261 17.1.3, grounded on the teacher's makeClientTxKey.
func ClientKeyForRequest(req *message.Request) (Key, error) {
	via, ok := req.Via()
	if !ok {
		return "", fmt.Errorf("transaction: request has no Via")
	}
	branch, hasBranch := via.Params.Get("branch")
	if !hasBranch || !strings.HasPrefix(branch, message.RFC3261BranchMagicCookie) ||
		strings.TrimPrefix(branch, message.RFC3261BranchMagicCookie) == "" {
		return "", fmt.Errorf("transaction: request has no RFC3261 branch")
	}

	method := req.Method
	if method == message.ACK {
		method = message.INVITE
	}

	var b strings.Builder
	b.WriteString(branch)
	b.WriteString(keySeparator)
	b.WriteString(via.Host)
	b.WriteString(keySeparator)
	b.WriteString(strconv.Itoa(via.Port))
	b.WriteString(keySeparator)
	b.WriteString(string(method))
	return Key(b.String()), nil
}

// ClientKeyForResponse builds the key a received response must match
// against an outstanding client transaction, using the response's own top
// Via (which the UAS must have copied verbatim from the request) and the
// CSeq method.
func ClientKeyForResponse(resp *message.Response) (Key, error) {
	via, ok := resp.Via()
	if !ok {
		return "", fmt.Errorf("transaction: response has no Via")
	}
	cseq, hasCSeq := resp.CSeq()
	if !hasCSeq {
		return "", fmt.Errorf("transaction: response has no CSeq")
	}
	branch, hasBranch := via.Params.Get("branch")
	if !hasBranch {
		return "", fmt.Errorf("transaction: response Via has no branch")
	}

	method := cseq.MethodName
	if method == message.ACK {
		method = message.INVITE
	}

	var b strings.Builder
	b.WriteString(branch)
	b.WriteString(keySeparator)
	b.WriteString(via.Host)
	b.WriteString(keySeparator)
	b.WriteString(strconv.Itoa(via.Port))
	b.WriteString(keySeparator)
	b.WriteString(string(method))
	return Key(b.String()), nil
}
