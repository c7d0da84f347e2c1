// Package ratelimit implements per-tenant request, token and concurrency
// limits.
//
// Request rate uses golang.org/x/time/rate: a bucket refilled at
// RequestsPerMinute/60 per second with capacity Burst. A denied request
// cancels its reservation so it does not consume future capacity, and
// RetryAfter is the delay the reservation would have needed.
//
// Token throughput uses a SlidingWindow of one-second buckets over a
// minute. The estimate is checked up front; actual usage is recorded after
// the request completes.
//
// Concurrency uses ConcurrentLimiter, a counting semaphore. A slot taken by
// Check is returned with Release.
//
//	l := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 600, Burst: 20, MaxConcurrent: 8})
//	res := l.Check(time.Now(), estimatedTokens)
//	if !res.Allowed {
//	    // reply 429 with res.RetryAfter
//	}
//	defer l.Release(res)
package ratelimit
