// Package attemptlog keeps a durable record of every upstream attempt the
// dispatcher makes.
//
// One Record is written per attempt, successful or not, so an operator can
// reconstruct how a request failed over across channels:
//
//	recs, _ := store.Query(ctx, &attemptlog.Query{RequestID: "req-123"})
//	for _, r := range recs {
//	    fmt.Println(r.Attempt, r.ChannelID, r.Outcome, r.Error)
//	}
//
// The package is split into three parts:
//
//   - recorder: an asynchronous domain.AttemptLogger that never blocks the
//     request path. When its buffer is full records are dropped and counted.
//   - storage: memory and SQLite Store implementations.
//   - retention: age and count based pruning, run on a cron schedule.
package attemptlog
