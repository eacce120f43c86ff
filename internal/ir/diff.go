package ir

import (
	"slices"
	"strings"
)

// DiffEntry is one changed OID: its snapshot at both ends of a diff.
type DiffEntry struct {
	OID  string   `json:"oid"`
	Old  Object   `json:"old"`
	New  Object   `json:"new"`
	Keys []string `json:"keys"` // Attribute keys whose value or type differs
}

// Diff describes how the live state at From became the live state at To.
type Diff struct {
	From    int64       `json:"from"`
	To      int64       `json:"to"`
	Added   []Object    `json:"added"`
	Removed []Object    `json:"removed"`
	Changed []DiffEntry `json:"changed"`
}

// IsEmpty reports whether the diff has no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Apply returns state with the diff applied: removed OIDs dropped, added
// objects inserted, changed objects replaced by their new snapshot. The
// result is sorted by OID.
func (d Diff) Apply(state []Object) []Object {
	byOID := make(map[string]Object, len(state)+len(d.Added))
	for _, o := range state {
		byOID[o.OID] = o
	}
	for _, o := range d.Removed {
		delete(byOID, o.OID)
	}
	for _, o := range d.Added {
		byOID[o.OID] = o
	}
	for _, e := range d.Changed {
		byOID[e.OID] = e.New
	}

	out := make([]Object, 0, len(byOID))
	for _, o := range byOID {
		out = append(out, o)
	}
	SortObjects(out)
	return out
}

// ChangedKeys returns the sorted attribute keys that differ between a and b.
func ChangedKeys(a, b IRObject) []string {
	var keys []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// SortObjects sorts objects by OID in place.
func SortObjects(objs []Object) {
	slices.SortFunc(objs, func(a, b Object) int {
		return strings.Compare(a.OID, b.OID)
	})
}
