// Package recorder writes attempt records asynchronously.
//
// RecordAttempt never blocks: records go into a buffered channel drained
// by a single writer goroutine. When the buffer is full the record is
// dropped and counted. Close drains what is buffered.
package recorder
