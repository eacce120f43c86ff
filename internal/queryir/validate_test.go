package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/edb/internal/ir"
)

func TestValidateObjectSelect(t *testing.T) {
	q := ObjectSelect{Filter: And{Predicates: []Predicate{
		AttrEquals{Key: "status", Value: ir.IRString("open")},
		AttrLike{Key: "title", Pattern: "pump%", FoldCase: true},
	}}}

	res := Validate(q)
	assert.True(t, res.Valid(), res.Errors)
	assert.NoError(t, res.Err())
}

func TestValidateRejectsMixedPredicates(t *testing.T) {
	res := Validate(ObjectSelect{Filter: FieldEquals{Field: ir.CommitKeyContext, Value: "c"}})
	assert.False(t, res.Valid())

	res = Validate(CommitSelect{Filter: AttrEquals{Key: "k", Value: ir.IRInt(1)}})
	assert.False(t, res.Valid())
}

func TestValidateCommitSelect(t *testing.T) {
	res := Validate(CommitSelect{Filter: Conj(
		FieldEquals{Field: ir.CommitKeyCommitter, Value: "alice"},
		FieldRange{Field: ir.CommitKeyTimestamp, To: 10},
	)})
	assert.True(t, res.Valid(), res.Errors)
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	res := Validate(CommitSelect{Filter: FieldEquals{Field: "author; DROP TABLE commits", Value: "x"}})
	assert.False(t, res.Valid())
	assert.Error(t, res.Err())
}

func TestValidateRejectsBadRanges(t *testing.T) {
	assert.False(t, Validate(CommitSelect{Filter: FieldRange{Field: ir.CommitKeyTimestamp, From: 5, To: 2}}).Valid())
	assert.False(t, Validate(CommitSelect{Filter: FieldRange{Field: ir.CommitKeyContext, To: 2}}).Valid())
	assert.False(t, Validate(CommitSelect{Filter: FieldEquals{Field: ir.CommitKeyTimestamp, Value: "1"}}).Valid())
}

func TestValidateRejectsMissingValue(t *testing.T) {
	assert.False(t, Validate(ObjectSelect{Filter: AttrEquals{Key: "k"}}).Valid())
	assert.False(t, Validate(nil).Valid())
}

func TestConj(t *testing.T) {
	assert.Nil(t, Conj())
	assert.Nil(t, Conj(nil, nil))

	single := AttrEquals{Key: "a", Value: ir.IRInt(1)}
	assert.Equal(t, single, Conj(nil, single))

	assert.IsType(t, And{}, Conj(single, single))
}
