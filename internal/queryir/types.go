package queryir

import "github.com/roach88/edb/internal/ir"

// Query is a sealed interface over the query shapes in this package.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over filter conditions.
type Predicate interface {
	predicateNode()
}

// ObjectSelect selects, for every OID, the latest version with timestamp <= At,
// keeps it only if it is live, and filters by attribute predicates.
//
// At == 0 selects the current head.
type ObjectSelect struct {
	At     int64
	Filter Predicate // nil = every live object
}

func (ObjectSelect) queryNode() {}

// CommitSelect selects commit metadata ordered by timestamp.
type CommitSelect struct {
	Filter     Predicate // nil = every commit
	Descending bool
	Limit      int // 0 = unlimited
}

func (CommitSelect) queryNode() {}

// AttrEquals matches objects whose attribute Key has the same type tag as Value
// and the same display text. FoldCase compares text case-insensitively.
type AttrEquals struct {
	Key      string
	Value    ir.IRValue
	FoldCase bool
}

func (AttrEquals) predicateNode() {}

// AttrLike matches objects whose string attribute Key matches Pattern, where
// % matches any run of characters and _ matches exactly one.
type AttrLike struct {
	Key      string
	Pattern  string
	FoldCase bool
}

func (AttrLike) predicateNode() {}

// FieldEquals matches commits whose metadata Field equals Value.
// Field is one of the ir.CommitKey* names other than timestamp.
type FieldEquals struct {
	Field string
	Value string
}

func (FieldEquals) predicateNode() {}

// FieldRange matches commits whose integer Field lies within [From, To].
// A zero bound is open.
type FieldRange struct {
	Field string
	From  int64
	To    int64
}

func (FieldRange) predicateNode() {}

// And matches when every sub-predicate matches. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conj builds an And from the non-nil predicates, collapsing trivial cases.
func Conj(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
