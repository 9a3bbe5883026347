// Package store is the SQLite fact store.
//
// Persistent tables:
//   - resources(storid, iri): the id of every named entity
//   - objs(s, p, o): asserted triples, never written by a run
//   - store(current_blank): the last construct id handed out
//   - runs: one row per finished run
//
// A run works inside one transaction on a pinned connection and keeps its
// fact tables (is_a, some, flat_lists_and, ...) as TEMP tables of that
// connection. Every run table has a UNIQUE index over all its columns
// (is_a over (s, o)) so rules insert with INSERT OR IGNORE, and rowids only
// grow during a run so watermarks can be compared against them.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during a run
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - temp_store=MEMORY: run tables never touch disk
package store
