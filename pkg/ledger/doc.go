// Package ledger provides the append-only change ledger for policy
// operations. It records every attempted change, successful or not, plus a
// snapshot of host and policy state per batch.
//
// # Append-Only Contract
//
// Batches are the only write surface. A batch carries one snapshot and its
// change records, and lands in a single transaction: either the whole batch
// persists or none of it does. Nothing updates or deletes existing rows;
// revert operations append new records rather than touching the originals.
//
// # Backends
//
// SQLiteStore persists to a local database file in WAL mode. MemoryStore
// keeps everything in process memory for tests and examples. Both honor the
// same ordering contract: reads come back newest first.
//
// # Basic Usage
//
//	store, err := ledger.NewSQLiteStore(&ledger.SQLiteConfig{Path: "data/ledger.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.AppendBatch(ctx, &ledger.Batch{
//	    Snapshot: snap,
//	    Changes:  records,
//	})
//
//	history, err := store.Changes(ctx, &ledger.Query{PolicyID: "disable-smbv1"})
package ledger
