// Package budget tracks tenant spend over rolling windows.
//
// # Rolling Windows
//
// Windows roll rather than reset on calendar boundaries:
//
//   - Hourly: last 60 minutes, 1-minute buckets
//   - Daily: last 24 hours, 1-hour buckets
//   - Monthly: last 30 days, 1-day buckets
//
// All methods take the current time explicitly so spend recovered from the
// ledger at start-up lands in the bucket it was originally committed to.
//
// # Usage
//
//	tracker := budget.NewTracker(budget.Config{
//	    Daily:          200.00,
//	    Monthly:        5000.00,
//	    AlertThreshold: 0.8,
//	})
//
//	tracker.AddAt(time.Now(), 2.50)
//
//	if st := tracker.Check(time.Now()); !st.Allowed {
//	    // spend already meets a limit
//	}
package budget
