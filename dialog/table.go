package dialog

// MaxDialogs bounds the table, per §3.
const MaxDialogs = 32

// Table is the bounded, single-threaded dialog store (§4.4). It is a
// plain slice scanned linearly rather than the teacher's sync.Map,
// because the engine never touches it from more than one goroutine and
// the spec requires hash-then-string comparison plus bounded,
// deterministic eviction rather than an unbounded concurrent map.
type Table struct {
	dialogs []*Dialog
}

// NewTable returns an empty dialog table.
func NewTable() *Table {
	return &Table{dialogs: make([]*Dialog, 0, MaxDialogs)}
}

// Len returns the number of dialogs currently stored.
func (t *Table) Len() int { return len(t.dialogs) }

// Find scans for a dialog matching id: hash first, then the three
// strings on a hash match. Returns nil on miss.
func (t *Table) Find(id ID) *Dialog {
	for _, d := range t.dialogs {
		if d.ID.Equal(id) {
			return d
		}
	}
	return nil
}

// FindOrCreate returns the existing dialog for id, or constructs, seeds,
// and inserts a new one via seed. seed is only invoked on a miss; it is
// responsible for filling in LocalURI/RemoteURI/RemoteTarget/RouteSet/
// initial CSeqs from the currently parsed message, per §4.4.
func (t *Table) FindOrCreate(id ID, isCaller bool, nowMs uint32, seed func(*Dialog)) *Dialog {
	if d := t.Find(id); d != nil {
		return d
	}

	d := NewDialog(id, isCaller)
	d.Touch(nowMs)
	if seed != nil {
		seed(d)
	}
	t.insert(d)
	return d
}

// insert appends d, evicting first if the table is already at MaxDialogs.
func (t *Table) insert(d *Dialog) {
	if len(t.dialogs) >= MaxDialogs {
		t.evict()
	}
	t.dialogs = append(t.dialogs, d)
}

// evict removes the least-recently-used terminated dialog; if none is
// terminated, it removes the oldest dialog of any state (§3).
func (t *Table) evict() {
	victim := -1
	for i, d := range t.dialogs {
		if !d.Terminated() {
			continue
		}
		if victim == -1 || d.LastUseMs < t.dialogs[victim].LastUseMs {
			victim = i
		}
	}

	if victim == -1 {
		for i, d := range t.dialogs {
			if victim == -1 || d.LastUseMs < t.dialogs[victim].LastUseMs {
				victim = i
			}
		}
	}

	if victim == -1 {
		return
	}
	t.dialogs = append(t.dialogs[:victim], t.dialogs[victim+1:]...)
}

// Remove deletes a dialog by identity, if present.
func (t *Table) Remove(id ID) {
	for i, d := range t.dialogs {
		if d.ID.Equal(id) {
			t.dialogs = append(t.dialogs[:i], t.dialogs[i+1:]...)
			return
		}
	}
}

// All returns the dialogs currently in the table, in storage order. The
// caller must not mutate the returned slice.
func (t *Table) All() []*Dialog {
	return t.dialogs
}
