// Package edb implements the engineering database: a commit-based,
// append-only object store with point-in-time reads.
//
// Writes go through a Commit built with CreateCommit and persisted with
// Database.Commit. Every accepted commit gets a unique, strictly increasing
// timestamp and a revision id, and its inserts, updates and deletes become
// visible together. Nothing is ever overwritten: each write appends a new
// version to the OID's version chain, and a delete appends a tombstone.
//
// Reads resolve "the version of an OID as of timestamp t" as the newest
// version with timestamp <= t. Head, HeadAt, Query, Diff, History and Log
// are all built on that rule.
//
// Not-found has two result shapes. GetCommit and GetLastCommit return nil
// with a nil error when nothing matches; every other lookup returns an
// *Error with ErrCodeNotFound.
package edb
