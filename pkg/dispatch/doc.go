// Package dispatch performs the upstream calls of a routed request.
//
// The dispatcher takes the ordered candidate list produced by the
// selector and walks it with bounded failover:
//
//   - at most Config.MaxAttempts attempts per request
//   - transient failures move on to the next candidate
//   - fatal failures and caller cancellation end the request at once
//   - candidates whose breaker cannot be acquired are skipped without
//     consuming an attempt
//
// Streaming requests fail over only until the first chunk arrives. After
// that the stream is relayed as is and a later failure reaches the caller
// as a final chunk whose Err matches ErrStreamInterrupted.
//
// Every attempt is reported to the health tracker, the rolling statistics
// and the attempt log. The budget gate is committed exactly once per
// dispatched request.
//
// Example usage:
//
//	d, err := dispatch.New(dispatch.Config{}, dispatch.Deps{
//	    Adapters: manager,
//	    Health:   monitor,
//	    Stats:    aggregator,
//	})
//	res, err := d.Dispatch(ctx, rc, candidates)
package dispatch
