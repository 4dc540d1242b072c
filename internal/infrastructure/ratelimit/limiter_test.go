package ratelimit

import "testing"

func TestLimiterAllowsUpToLimit(t *testing.T) {
	l := NewLimiter(Config{PerIPPerMinute: 5, PerIPPerHour: 100, GlobalPerMinute: 1000})
	for i := 0; i < 5; i++ {
		r := l.Check("addr-a")
		if !r.Allowed {
			t.Fatalf("request %d: expected allowed, got %v", i, r.Status)
		}
	}
	r := l.Check("addr-a")
	if r.Allowed {
		t.Fatalf("6th request should be blocked")
	}
	if r.Status != StatusBlockedIPMinute {
		t.Errorf("status = %v, want %v", r.Status, StatusBlockedIPMinute)
	}
	if r.RetryAfter <= 0 || r.RetryAfter > 60e9 {
		t.Errorf("retry_after = %v, want in (0, 60s]", r.RetryAfter)
	}
}

func TestLimiterIsolatesAddresses(t *testing.T) {
	l := NewLimiter(Config{PerIPPerMinute: 1, PerIPPerHour: 100, GlobalPerMinute: 1000})
	if !l.Check("addr-a").Allowed {
		t.Fatal("first request for addr-a should be allowed")
	}
	if l.Check("addr-a").Allowed {
		t.Fatal("second request for addr-a should be blocked")
	}
	if !l.Check("addr-b").Allowed {
		t.Fatal("first request for addr-b should be allowed despite addr-a being blocked")
	}
}

func TestLimiterGlobalCap(t *testing.T) {
	l := NewLimiter(Config{PerIPPerMinute: 1000, PerIPPerHour: 10000, GlobalPerMinute: 2})
	if !l.Check("a").Allowed {
		t.Fatal("first global request should be allowed")
	}
	if !l.Check("b").Allowed {
		t.Fatal("second global request should be allowed")
	}
	if l.Check("c").Allowed {
		t.Fatal("third global request should be blocked by global cap")
	}
}

func TestLimiterEvaluateDoesNotRecord(t *testing.T) {
	l := NewLimiter(Config{PerIPPerMinute: 1, PerIPPerHour: 100, GlobalPerMinute: 1000})
	for i := 0; i < 5; i++ {
		if !l.Evaluate("addr-a").Allowed {
			t.Fatalf("iteration %d: Evaluate alone should never consume budget", i)
		}
	}
	l.Record("addr-a")
	if l.Evaluate("addr-a").Allowed {
		t.Fatal("expected the single recorded request to exhaust the per-minute limit")
	}
}

func TestLimiterMonotoneDenial(t *testing.T) {
	l := NewLimiter(Config{PerIPPerMinute: 1, PerIPPerHour: 100, GlobalPerMinute: 1000})
	l.Check("addr-a")
	for i := 0; i < 3; i++ {
		if l.Check("addr-a").Allowed {
			t.Fatalf("iteration %d: denial should remain monotone within the window", i)
		}
	}
}
