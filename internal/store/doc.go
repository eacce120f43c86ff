// Package store provides SQLite-backed durable storage for the EDB revision log.
//
// The store is append-only:
//   - commits: one row per accepted commit, keyed by its unique timestamp
//   - objects: one row per version of an OID (tombstones have deleted = 1)
//   - entries: the top-level attributes of every live version, for queries
//
// Triggers reject UPDATE and DELETE on commits and objects.
//
// # Ordering
//
// Commit timestamps are strictly increasing; WriteCommit refuses a timestamp
// that does not exceed the newest stored one. Multi-row reads are ordered by
// timestamp or by OID (COLLATE BINARY) so results are deterministic.
//
// # Point-in-time lookups
//
// ObjectAt resolves "oid as of t" by binary search over the OID's cached
// version chain followed by a primary-key read. StateAt and SelectObjects use
// queries compiled by querysql.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one pooled connection: every transaction sees a single snapshot
package store
