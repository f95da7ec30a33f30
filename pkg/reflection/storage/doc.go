// Package storage provides storage backends for reflections.
//
// # Backends
//
//   - Memory: process-local, for tests and single runs
//   - SQLite: durable single-node storage (WAL mode, prepared inserts,
//     indexes on created_at, trace_id, session_id and action_taken)
//   - Discard: accepts and drops every record
//
// Open selects a backend from configuration:
//
//	store, err := storage.Open(cfg.Storage, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Storing a reflection twice with the same ID replaces the earlier copy.
package storage
