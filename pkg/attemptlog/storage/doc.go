// Package storage provides attempt log backends.
//
// MemoryStore keeps records in a slice and suits tests and short-lived
// processes. SQLiteStore persists them with github.com/mattn/go-sqlite3 in
// WAL mode; the schema is created on open.
package storage
