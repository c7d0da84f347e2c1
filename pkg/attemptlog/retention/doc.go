// Package retention prunes the attempt log.
//
// Pruning runs in two phases: records older than MaxAge are deleted, then
// the oldest records beyond MaxRecords. The Scheduler runs the Pruner on a
// standard five-field cron expression, for example "0 3 * * *" for daily at
// 03:00.
package retention
