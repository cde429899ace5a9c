package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipcore/sipreactor/message"
	"github.com/sipcore/sipreactor/parser"
)

func testInviteAndResponse(t *testing.T) (*message.Request, *message.Response) {
	t.Helper()
	uri, err := message.ParseUri("sip:bob@example.com")
	require.NoError(t, err)
	req := message.NewRequest(message.INVITE, uri)

	fromURI, _ := message.ParseUri("sip:alice@example.com")
	req.AppendHeader(message.NewFromHeader("Alice", fromURI, message.NewParams().Add("tag", "ft1")))
	toURI, _ := message.ParseUri("sip:bob@example.com")
	req.AppendHeader(message.NewToHeader("Bob", toURI, message.NewParams()))
	callID := message.CallIDHeader("c1")
	req.AppendHeader(&callID)
	req.AppendHeader(&message.CSeqHeader{SeqNo: 1, MethodName: message.INVITE})

	rrURI1, _ := message.ParseUri("sip:p1:5060")
	rrURI2, _ := message.ParseUri("sip:p2:5060")
	req.AppendHeader(message.NewRecordRouteHeader(rrURI1))
	req.AppendHeader(message.NewRecordRouteHeader(rrURI2))

	contactURI, _ := message.ParseUri("sip:alice@10.0.0.1:5070")
	req.AppendHeader(message.NewContactHeader("", contactURI, message.NewParams()))

	resp := message.NewResponseFromRequest(req, message.StatusOK, "OK", nil, parser.Default)
	return req, resp
}

func TestFromUASBuildsEarlyDialogWithReversedRouteSet(t *testing.T) {
	req, resp := testInviteAndResponse(t)

	d := FromUAS(req, resp)
	assert.Equal(t, "c1", d.CallID)
	assert.Equal(t, "ft1", d.RemoteTag)
	assert.NotEmpty(t, d.LocalTag)
	assert.Equal(t, Early, d.State)
	assert.Equal(t, uint32(1), d.RemoteCSeq)
	assert.Equal(t, "alice@example.com", d.RemoteURI.User+"@"+d.RemoteURI.Host)
	assert.Equal(t, "alice@10.0.0.1", d.RemoteTarget.User+"@"+d.RemoteTarget.Host)

	require.Len(t, d.RouteSet, 2)
	assert.Equal(t, "p2", d.RouteSet[0].Host)
	assert.Equal(t, "p1", d.RouteSet[1].Host)
}

func TestConfirmTransitionsState(t *testing.T) {
	req, resp := testInviteAndResponse(t)
	d := FromUAS(req, resp)
	require.Equal(t, Early, d.State)
	d.Confirm()
	assert.Equal(t, Confirmed, d.State)
}

func TestTableInsertFindRemove(t *testing.T) {
	req, resp := testInviteAndResponse(t)
	d := FromUAS(req, resp)

	tbl := NewTable()
	tbl.Insert(d)
	assert.Equal(t, 1, tbl.Len())

	// An in-dialog BYE seen by the UAS swaps roles: the dialog's local
	// tag is the request's To-tag, the dialog's remote tag is its From-tag.
	bye := message.NewRequest(message.BYE, req.Recipient)
	callID := message.CallIDHeader(d.CallID)
	bye.AppendHeader(&callID)
	bye.AppendHeader(message.NewFromHeader("Alice", d.RemoteURI, message.NewParams().Add("tag", d.RemoteTag)))
	bye.AppendHeader(message.NewToHeader("", d.LocalURI, message.NewParams().Add("tag", d.LocalTag)))

	found, ok := tbl.FindAsUAS(bye)
	require.True(t, ok)
	assert.Equal(t, d, found)

	tbl.Remove(d)
	assert.Equal(t, 0, tbl.Len())
	_, ok = tbl.FindAsUAS(bye)
	assert.False(t, ok)
}

func TestTableSupportsForkingMultipleEarlyDialogs(t *testing.T) {
	req, resp1 := testInviteAndResponse(t)
	d1 := FromUAS(req, resp1)

	resp2 := resp1.Clone()
	to, _ := resp2.To()
	to.SetTag("forked-tag-2")
	d2 := FromUAS(req, resp2)

	tbl := NewTable()
	tbl.Insert(d1)
	tbl.Insert(d2)
	assert.Equal(t, 2, tbl.Len())
}
