// Package harness runs YAML scenarios against a fresh in-memory database.
//
// A scenario is a list of steps, each one event for the Event Processor or
// a revert, followed by assertions about the resulting state:
//
//	name: resurrect-bracket
//	steps:
//	  - event: insert
//	    connector: cad+onshape+ws1
//	    objects:
//	      - oid: p1
//	        attributes: { name: bracket }
//	  - event: delete
//	    connector: cad+onshape+ws1
//	    oids: [p1]
//	assertions:
//	  - type: head_count
//	    count: 0
//	  - type: history_length
//	    oid: p1
//	    count: 2
//
// Runs are deterministic: timestamps are 1, 2, 3, ... and revisions are
// rev-1, rev-2, ... so the step trace can be compared against a golden file.
package harness
