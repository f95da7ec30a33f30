// Package retention prunes stored reflections by age and by count.
//
// A Pruner deletes reflections older than Days and, when MaxRecords is set,
// the oldest reflections beyond that cap. Start runs Prune on a cron
// schedule (standard five-field syntax, e.g. "0 3 * * *") until the context
// passed to Start is cancelled or Stop is called.
//
// When ArchivePath is set, records are written there as JSON before they are
// deleted.
package retention
