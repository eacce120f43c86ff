// Package queryir provides the abstract query representation used by the
// EDB query engine.
//
// Two query shapes exist:
//
//	[ObjectSelect] live object versions as of a timestamp, filtered by attributes
//	[CommitSelect] commit metadata rows, filtered by metadata fields
//
// Query and Predicate are sealed interfaces using the marker method pattern,
// so backend compilers (see querysql) can switch over them exhaustively.
//
// Predicates:
//   - AttrEquals: attribute key holds a value with the same type tag and text
//   - AttrLike: string attribute matches a % / _ pattern
//   - FieldEquals: commit metadata field equals a string
//   - FieldRange: integer commit field lies within inclusive bounds
//   - And: conjunction
//
// Attribute predicates only apply to ObjectSelect and field predicates only
// to CommitSelect. Validate reports misuse before compilation.
package queryir
