// Package cooldown tracks per-key firing times so that an action fires at
// most once per cooldown window.
//
// TryAcquire is an atomic read-modify-write: of two overlapping callers inside
// the same window exactly one acquires. MemoryStore keeps state in process;
// SQLiteStore persists it with modernc.org/sqlite so cooldowns survive
// restarts and can be shared by processes using the same database file.
package cooldown
