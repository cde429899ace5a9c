// Package dialog implements the dialog table spec.md section 4.5
// describes: the peer-to-peer state a confirmed (or early) INVITE
// establishes, keyed by (Call-ID, local tag, remote tag) so an ACK or
// an in-dialog request (BYE, re-INVITE) can find the dialog it belongs
// to without walking the transaction tables.
//
// Grounded on the teacher's sip.DialogState constants (sip/dialog.go)
// and the higher-level DialogServer/DialogClient record shape
// (dialog_server.go, dialog_client.go) - trimmed to the fields spec.md
// section 3 actually names and re-keyed for the ordered-table match
// rule RFC 3261 12 describes instead of the teacher's sync.Map-of-every-
// dialog-by-Call-ID-only approach, which can't represent forking (more
// than one early dialog sharing a Call-ID).
package dialog

import (
	"sync"

	"github.com/sipcore/sipreactor/message"
)

// State is where a Dialog sits in its own small lifecycle - spec.md
// section 3: "state ∈ {Early, Confirmed}".
type State int

const (
	Early State = iota
	Confirmed
)

func (s State) String() string {
	if s == Confirmed {
		return "confirmed"
	}
	return "early"
}

// Key identifies a Dialog for table lookup - the (Call-ID, local-tag,
// remote-tag) triple RFC 3261 12 uses to match in-dialog requests.
type Key struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

// Dialog is the persistent peer-to-peer relationship a non-100
// provisional or final response to INVITE establishes - spec.md
// section 3.
type Dialog struct {
	CallID      string
	LocalTag    string
	RemoteTag   string
	LocalCSeq   uint32
	RemoteCSeq  uint32
	LocalURI    message.Uri
	RemoteURI   message.Uri
	RemoteTarget message.Uri
	RouteSet    []message.Uri
	Secure      bool
	State       State

	// IST is the INVITE server transaction this dialog was created
	// from, so an inbound ACK can stop its 2xx retransmissions - spec.md
	// section 4.4's "stop_retransmissions(dialog)" operation needs a
	// handle back to the transaction layer, not just the dialog record.
	IST any
}

func (d *Dialog) Key() Key {
	return Key{CallID: d.CallID, LocalTag: d.LocalTag, RemoteTag: d.RemoteTag}
}

// FromUAS builds the Dialog a 2xx response to an inbound INVITE
// establishes: local = the UAS (us), remote = the UAC (caller).
// Grounded on the teacher's DialogServer.ReadInvite (dialog_server.go),
// trimmed to the fields this engine persists.
func FromUAS(invite *message.Request, resp *message.Response) *Dialog {
	from, _ := invite.From()
	to, _ := resp.To()
	callID, _ := invite.CallID()
	cseq, _ := invite.CSeq()

	localTag := ""
	if to != nil {
		localTag, _ = to.Tag()
	}
	remoteTag := ""
	if from != nil {
		remoteTag, _ = from.Tag()
	}

	d := &Dialog{
		CallID:    string(*callID),
		LocalTag:  localTag,
		RemoteTag: remoteTag,
		State:     Early,
	}
	if cseq != nil {
		d.RemoteCSeq = cseq.SeqNo
	}
	if to != nil {
		d.LocalURI = to.Address
	}
	if from != nil {
		d.RemoteURI = from.Address
	}
	if contact, ok := invite.Contact(); ok {
		d.RemoteTarget = contact.Address
	}
	d.Secure = invite.Recipient.Encrypted
	d.updateRouteSet(invite)
	return d
}

// updateRouteSet records the dialog's route set from the request's
// Record-Route headers, reversed to reflect the UAS's sending order
// (RFC 3261 12.1.1) - grounded on the teacher's DialogServer route
// handling in ReadInvite.
func (d *Dialog) updateRouteSet(invite *message.Request) {
	var routes []message.Uri
	for _, h := range invite.GetHeaders("Record-Route") {
		rr, ok := h.(*message.RecordRouteHeader)
		if !ok {
			continue
		}
		routes = append(routes, rr.Address)
	}
	for i, j := 0, len(routes)-1; i < j; i, j = i+1, j-1 {
		routes[i], routes[j] = routes[j], routes[i]
	}
	d.RouteSet = routes
}

// Confirm transitions the dialog to Confirmed on receipt of the ACK -
// spec.md section 3: "confirmed by 2xx and ACK".
func (d *Dialog) Confirm() {
	d.State = Confirmed
}

// Table is the ordered dialog table spec.md section 4.5 names. In this
// module it is only touched from the reactor goroutine, same as the
// transaction tables (spec.md section 5); every method still takes the
// table's mutex.
type Table struct {
	mu    sync.Mutex
	order []Key
	items map[Key]*Dialog
}

func NewTable() *Table {
	return &Table{items: make(map[Key]*Dialog)}
}

// Insert adds d to the table - spec.md's insert(dialog). Multiple early
// dialogs may coexist for one INVITE transaction (forking); at most one
// Confirmed dialog survives per key, so inserting a Confirmed dialog
// replaces any Early one at the same key.
func (t *Table) Insert(d *Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := d.Key()
	if _, exists := t.items[k]; !exists {
		t.order = append(t.order, k)
	}
	t.items[k] = d
}

// Remove deletes d from the table - spec.md's remove(dialog), called on
// BYE completion or on a failure response that terminates an early
// dialog.
func (t *Table) Remove(d *Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := d.Key()
	if _, ok := t.items[k]; !ok {
		return
	}
	delete(t.items, k)
	for i, existing := range t.order {
		if existing == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len reports how many dialogs are currently tracked - wired into the
// metrics package's dialog_active gauge.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// FindAsUAS matches an inbound in-dialog request (ACK, BYE, re-INVITE)
// against the table with the UAS's role: the request's To-tag is our
// local tag and its From-tag is the remote tag - RFC 3261 section 12's
// role-swapped matching rule, grounded on the teacher's
// DialogServer.matchDialog/DialogClient equivalents which instead key
// by Call-ID alone (sufficient for their single-dialog-per-call-ID
// session model, insufficient for spec.md's forking requirement).
func (t *Table) FindAsUAS(req *message.Request) (*Dialog, bool) {
	callID, ok := req.CallID()
	if !ok {
		return nil, false
	}
	to, ok := req.To()
	if !ok {
		return nil, false
	}
	from, ok := req.From()
	if !ok {
		return nil, false
	}
	localTag, _ := to.Tag()
	remoteTag, _ := from.Tag()

	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.items[Key{CallID: string(*callID), LocalTag: localTag, RemoteTag: remoteTag}]
	return d, ok
}
