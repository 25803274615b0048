// Package dialog implements tinySIP's dialog identity and table (§3, §4.4):
// a bounded collection of SIP dialogs keyed by (Call-ID, local-tag,
// remote-tag), looked up by a precomputed 32-bit hash before the full
// three-string comparison.
package dialog

import "hash/fnv"

// ID is a dialog's identity triple plus its precomputed hash. The hash is
// computed once, at construction, since none of its three inputs change
// over a dialog's lifetime.
type ID struct {
	CallID    string
	LocalTag  string
	RemoteTag string
	hash      uint32
}

// NewID builds an ID and precomputes its hash. hash/fnv is the standard
// library's non-cryptographic hash; nothing in the example pack offers a
// purpose-built ad hoc 3-string hasher, and FNV-1a is the idiomatic Go
// choice for this kind of fast equality pre-filter.
func NewID(callID, localTag, remoteTag string) ID {
	h := fnv.New32a()
	h.Write([]byte(callID))
	h.Write([]byte{0})
	h.Write([]byte(localTag))
	h.Write([]byte{0})
	h.Write([]byte(remoteTag))
	return ID{CallID: callID, LocalTag: localTag, RemoteTag: remoteTag, hash: h.Sum32()}
}

// Hash returns the precomputed 32-bit hash used as the first comparison
// in a table scan.
func (id ID) Hash() uint32 { return id.hash }

// Equal reports whether two IDs name the same dialog: hash first, then
// the three strings on a hash match.
func (id ID) Equal(other ID) bool {
	if id.hash != other.hash {
		return false
	}
	return id.CallID == other.CallID && id.LocalTag == other.LocalTag && id.RemoteTag == other.RemoteTag
}
