package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/edb/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Errors []string
}

// Valid reports whether no problems were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the problems as a single error, or nil.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return errors.New(strings.Join(r.Errors, "; "))
}

// Validate checks that a query only uses predicates that apply to its shape
// and that every field and value is usable.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}

	switch q := query.(type) {
	case ObjectSelect:
		v.validateObjectSelect(q)
	case *ObjectSelect:
		v.validateObjectSelect(*q)
	case CommitSelect:
		v.validateCommitSelect(q)
	case *CommitSelect:
		v.validateCommitSelect(*q)
	case nil:
		v.addError("nil query")
	default:
		v.addError("unknown query type: %T", query)
	}

	return ValidationResult{Errors: v.errors}
}

type validator struct {
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateObjectSelect(q ObjectSelect) {
	if q.At < 0 {
		v.addError("negative timestamp %d", q.At)
	}
	v.walk(q.Filter, true)
}

func (v *validator) validateCommitSelect(q CommitSelect) {
	if q.Limit < 0 {
		v.addError("negative limit %d", q.Limit)
	}
	v.walk(q.Filter, false)
}

// walk validates a predicate tree. objects selects which predicate family is allowed.
func (v *validator) walk(p Predicate, objects bool) {
	switch pred := p.(type) {
	case nil:
	case AttrEquals:
		v.attr(objects, pred.Key)
		if ir.TypeOf(pred.Value) == "" {
			v.addError("attribute %q compared to unsupported value %T", pred.Key, pred.Value)
		}
	case AttrLike:
		v.attr(objects, pred.Key)
	case FieldEquals:
		v.field(objects, pred.Field)
		if pred.Field == ir.CommitKeyTimestamp {
			v.addError("field %q needs FieldRange", pred.Field)
		}
	case FieldRange:
		v.field(objects, pred.Field)
		if pred.Field != ir.CommitKeyTimestamp {
			v.addError("field %q is not an integer field", pred.Field)
		}
		if pred.From != 0 && pred.To != 0 && pred.From > pred.To {
			v.addError("empty range [%d, %d] on %q", pred.From, pred.To, pred.Field)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.walk(sub, objects)
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) attr(objects bool, key string) {
	if !objects {
		v.addError("attribute predicate on %q in commit query", key)
	}
	if key == "" {
		v.addError("empty attribute key")
	}
}

func (v *validator) field(objects bool, field string) {
	if objects {
		v.addError("commit field predicate on %q in object query", field)
	}
	if !ir.ValidCommitKeys[field] {
		v.addError("unknown commit field %q", field)
	}
}
