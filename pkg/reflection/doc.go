// Package reflection defines the decision record produced for every evaluated
// agent message, and the interfaces for storing and exporting it.
//
// A Reflection is immutable once produced. The correction loop emits one per
// iteration; callers persist them individually through a Sink or a Storage.
//
// Subpackages:
//   - storage: in-memory and SQLite backends
//   - query: query validation shared by the backends
//   - export: JSON and CSV exporters
//   - retention: age-based pruning on a cron schedule
package reflection
