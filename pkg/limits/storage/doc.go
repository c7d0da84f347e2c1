// Package storage persists the spend ledger behind the budget gate.
//
// The ledger has one row per request, keyed on the request ID. Appending a
// request that is already present is a no-op and reports false, which is
// what makes budget commits idempotent. Entries are replayed into the
// rolling budget windows at start-up.
//
// Two backends are provided:
//
//   - MemoryLedger: the default, lost on restart
//   - SQLiteLedger: a file-backed ledger on modernc.org/sqlite in WAL mode
//
//	ledger, err := storage.NewSQLiteLedger("/var/lib/loom/ledger.db")
//	inserted, err := ledger.Append(ctx, storage.Entry{RequestID: id, TenantID: "acme", Cost: 0.02})
package storage
