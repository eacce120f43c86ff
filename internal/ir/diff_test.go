package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffApply(t *testing.T) {
	state := []Object{
		NewObject("A", IRObject{"v": IRInt(1)}),
		NewObject("B", IRObject{"v": IRInt(1)}),
	}
	d := Diff{
		Added:   []Object{NewObject("C", IRObject{"v": IRInt(3)})},
		Removed: []Object{state[1]},
		Changed: []DiffEntry{{OID: "A", Old: state[0], New: NewObject("A", IRObject{"v": IRInt(2)})}},
	}

	got := d.Apply(state)

	assert.Len(t, got, 2)
	assert.Equal(t, "A", got[0].OID)
	assert.Equal(t, IRInt(2), got[0].Attributes["v"])
	assert.Equal(t, "C", got[1].OID)
}

func TestDiffIsEmpty(t *testing.T) {
	assert.True(t, Diff{From: 3, To: 3}.IsEmpty())
	assert.False(t, Diff{Added: []Object{NewObject("A", nil)}}.IsEmpty())
}

func TestChangedKeys(t *testing.T) {
	a := IRObject{"same": IRInt(1), "changed": IRInt(1), "gone": IRBool(true)}
	b := IRObject{"same": IRInt(1), "changed": IRString("1"), "new": IRBool(true)}

	assert.Equal(t, []string{"changed", "gone", "new"}, ChangedKeys(a, b))
}

func TestCommitOIDs(t *testing.T) {
	c := Commit{
		Inserts: []Object{NewObject("B", nil)},
		Updates: []Object{NewObject("A", nil)},
		Deletes: []string{"C", "A"},
	}

	assert.Equal(t, []string{"A", "B", "C"}, c.OIDs())
}
