// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple interfaces
// through a single database connection:
//
//   - EmbeddingStore: versioned embedding snapshot persistence
//   - GraphStore: PageRank snapshot persistence
//   - UsageStore: access log and usage signals
//   - SearchEngine: FTS5 keyword index ranked by BM25
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-rank/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
