package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 1000; i++ {
		res := l.Check(epoch, 10_000)
		if !res.Allowed {
			t.Fatalf("Check() #%d denied without limits: %+v", i, res)
		}
		if res.HoldsSlot() {
			t.Fatal("unlimited limiter should not hold slots")
		}
	}
}

func TestLimiter_RequestBurstAndRefill(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 3})

	for i := 0; i < 3; i++ {
		if res := l.Check(epoch, 0); !res.Allowed {
			t.Fatalf("request %d within burst denied: %+v", i, res)
		}
	}

	res := l.Check(epoch, 0)
	if res.Allowed {
		t.Fatal("request beyond burst allowed")
	}
	if res.Dimension != DimensionRequests {
		t.Errorf("Dimension = %q, want requests", res.Dimension)
	}
	if res.RetryAfter < 900*time.Millisecond || res.RetryAfter > 1100*time.Millisecond {
		t.Errorf("RetryAfter = %v, want about one second at 1 rps", res.RetryAfter)
	}

	// The denied reservation was cancelled, so exactly one token is back a
	// second later.
	if res := l.Check(epoch.Add(time.Second), 0); !res.Allowed {
		t.Errorf("request after refill denied: %+v", res)
	}
	if res := l.Check(epoch.Add(time.Second), 0); res.Allowed {
		t.Error("second request after a one-token refill allowed")
	}
}

func TestLimiter_DefaultBurst(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 5})
	if got := l.Config().Burst; got != 1 {
		t.Errorf("Burst = %d, want 1", got)
	}

	l = NewLimiter(Config{RequestsPerMinute: 600})
	if got := l.Config().Burst; got != 60 {
		t.Errorf("Burst = %d, want 60", got)
	}
}

func TestLimiter_Tokens(t *testing.T) {
	l := NewLimiter(Config{TokensPerMinute: 1000})

	if res := l.Check(epoch, 5000); !res.Allowed {
		t.Fatalf("first oversized request denied: %+v", res)
	}
	l.RecordTokens(epoch, 800)

	res := l.Check(epoch.Add(time.Second), 300)
	if res.Allowed || res.Dimension != DimensionTokens {
		t.Fatalf("Check() = %+v, want token denial", res)
	}
	if res.Remaining != 200 {
		t.Errorf("Remaining = %d, want 200", res.Remaining)
	}
	if res.RetryAfter != 59*time.Second {
		t.Errorf("RetryAfter = %v, want 59s", res.RetryAfter)
	}

	if res := l.Check(epoch.Add(time.Second), 200); !res.Allowed {
		t.Errorf("request that fits denied: %+v", res)
	}
	if res := l.Check(epoch.Add(61*time.Second), 900); !res.Allowed {
		t.Errorf("request after the window rolled denied: %+v", res)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(Config{MaxConcurrent: 2, RequestsPerMinute: 60, Burst: 10})

	a := l.Check(epoch, 0)
	b := l.Check(epoch, 0)
	if !a.Allowed || !b.Allowed || !a.HoldsSlot() {
		t.Fatalf("first two requests: %+v %+v", a, b)
	}

	c := l.Check(epoch, 0)
	if c.Allowed || c.Dimension != DimensionConcurrent {
		t.Fatalf("third request = %+v, want concurrency denial", c)
	}
	if l.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", l.InFlight())
	}

	l.Release(a)
	if res := l.Check(epoch, 0); !res.Allowed {
		t.Errorf("request after release denied: %+v", res)
	}

	// 3 allowed + the concurrency denial refunded its request token.
	if got := l.requests.TokensAt(epoch); got != 7 {
		t.Errorf("request tokens left = %v, want 7", got)
	}
}

func TestConcurrentLimiter_Race(t *testing.T) {
	cl := NewConcurrentLimiter(5)

	var peak, inside atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cl.Acquire() {
				return
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			cl.Release()
		}()
	}
	wg.Wait()

	if peak.Load() > 5 {
		t.Errorf("peak holders = %d, want <= 5", peak.Load())
	}
	if cl.Current() != 0 || cl.Remaining() != 5 {
		t.Errorf("after drain: current %d remaining %d", cl.Current(), cl.Remaining())
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	sw.AddAt(epoch, 100)
	sw.AddAt(epoch.Add(500*time.Millisecond), 50)
	sw.AddAt(epoch.Add(30*time.Second), 25)

	if got := sw.SumAt(epoch.Add(30 * time.Second)); got != 175 {
		t.Errorf("SumAt(+30s) = %d, want 175", got)
	}
	if got := sw.SumAt(epoch.Add(60 * time.Second)); got != 25 {
		t.Errorf("SumAt(+60s) = %d, want 25", got)
	}
	if got := sw.ResetAt(epoch.Add(60 * time.Second)); !got.Equal(epoch.Add(90 * time.Second)) {
		t.Errorf("ResetAt() = %v", got)
	}
}
