package dialog

import "github.com/wiphone/tinysip/sip"

// State is a dialog's lifecycle stage (§3). A dialog is never resurrected:
// transitions only move forward along none -> early -> confirmed ->
// terminated, or none -> confirmed -> terminated, or none -> terminated.
type State int

const (
	StateNone State = iota
	StateEarly
	StateConfirmed
	StateTerminated
)

// Dialog is one SIP dialog: a caller/callee relationship established by an
// INVITE, identified by ID and tracked until it terminates (§3).
type Dialog struct {
	ID ID

	IsCaller bool

	LocalURI          string
	RemoteURI         string
	LocalDisplayName  string
	RemoteDisplayName string

	// RemoteTarget is the peer's Contact URI. Mutable only by a
	// target-refreshing re-INVITE.
	RemoteTarget string

	RouteSet sip.RouteSet

	// LocalCSeq/RemoteCSeq are monotonically non-decreasing; -1 means no
	// request has yet been sent/received in that direction.
	LocalCSeq  int32
	RemoteCSeq int32

	State State

	Secure   bool
	Accepted bool

	// LastUseMs drives LRU eviction in the table.
	LastUseMs uint32
}

// NewDialog constructs a Dialog in StateNone with both CSeq counters
// empty, per the caller/callee CSeq-seeding rule in §4.4.
func NewDialog(id ID, isCaller bool) *Dialog {
	return &Dialog{
		ID:         id,
		IsCaller:   isCaller,
		LocalCSeq:  -1,
		RemoteCSeq: -1,
		State:      StateNone,
	}
}

// Touch records dialog activity for LRU eviction purposes.
func (d *Dialog) Touch(nowMs uint32) {
	d.LastUseMs = nowMs
}

// Terminated reports whether the dialog has reached its terminal state.
// Once true it stays true: the table never resurrects a dialog.
func (d *Dialog) Terminated() bool {
	return d.State == StateTerminated
}

// Terminate moves the dialog to StateTerminated, touching it so a freshly
// terminated dialog isn't immediately the eviction target ahead of dialogs
// that went stale long ago.
func (d *Dialog) Terminate(nowMs uint32) {
	d.State = StateTerminated
	d.Touch(nowMs)
}

// Confirm moves an early dialog to confirmed on the 2xx final response
// to the original INVITE. A terminated dialog stays terminated.
func (d *Dialog) Confirm(nowMs uint32) {
	if d.State != StateTerminated {
		d.State = StateConfirmed
	}
	d.Touch(nowMs)
}

// MarkEarly moves a none-state dialog to early on a provisional response
// carrying a to-tag.
func (d *Dialog) MarkEarly(nowMs uint32) {
	if d.State == StateNone {
		d.State = StateEarly
	}
	d.Touch(nowMs)
}
