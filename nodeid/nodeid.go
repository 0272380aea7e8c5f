// Package nodeid defines the 32-byte validator identifier shared by every
// consensus component (spec.md §3 "NodeId"). It is intentionally tiny and
// dependency-free so every other package in this module can import it
// without risking a cycle.
package nodeid

import (
	"bytes"
	"encoding/hex"
	"sort"
)

// ID is a 32-byte opaque validator identifier, totally ordered
// lexicographically.
type ID [32]byte

// String renders the identifier as lowercase hex.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Less reports whether id sorts lexicographically before other.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Sort sorts ids lexicographically in place and returns it.
func Sort(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// FromBytes copies up to 32 bytes of b into a new ID, zero-padding on the
// right if b is shorter.
func FromBytes(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}
