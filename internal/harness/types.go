package harness

import "github.com/roach88/edb/internal/ir"

// TraceEntry records the outcome of one scenario step.
type TraceEntry struct {
	Step      int      `json:"step"`
	Event     string   `json:"event"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Revision  string   `json:"revision,omitempty"`
	Context   string   `json:"context,omitempty"`
	OIDs      []string `json:"oids,omitempty"` // touched by the commit, sorted
	Error     string   `json:"error,omitempty"`
}

// canonical converts the entry for canonical JSON. Empty fields are left out.
func (e TraceEntry) canonical() ir.IRObject {
	obj := ir.IRObject{
		"step":  ir.IRInt(e.Step),
		"event": ir.IRString(e.Event),
	}
	if e.Timestamp != 0 {
		obj["timestamp"] = ir.IRInt(e.Timestamp)
	}
	if e.Revision != "" {
		obj["revision"] = ir.IRString(e.Revision)
	}
	if e.Context != "" {
		obj["context"] = ir.IRString(e.Context)
	}
	if len(e.OIDs) > 0 {
		oids := make(ir.IRArray, len(e.OIDs))
		for i, oid := range e.OIDs {
			oids[i] = ir.IRString(oid)
		}
		obj["oids"] = oids
	}
	if e.Error != "" {
		obj["error"] = ir.IRString(e.Error)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEntry `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
