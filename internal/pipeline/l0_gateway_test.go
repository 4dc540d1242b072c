package pipeline

import (
	"testing"

	"github.com/kellogg/sentrychat/internal/infrastructure/ratelimit"
)

func newTestGateway() *Gateway {
	limiter := ratelimit.NewLimiter(ratelimit.Config{PerIPPerMinute: 5, PerIPPerHour: 50, GlobalPerMinute: 1000})
	return NewGateway(limiter, 8192)
}

func TestGatewayPassesValidRequest(t *testing.T) {
	g := newTestGateway()
	r := g.Validate("1.2.3.4", "application/json", 100, true)
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r.IPHash == "" {
		t.Fatal("expected ip hash to be set")
	}
}

func TestGatewayRejectsInvalidContentType(t *testing.T) {
	g := newTestGateway()
	r := g.Validate("1.2.3.4", "text/plain", 100, true)
	if r.Passed {
		t.Fatal("expected rejection")
	}
	if r.Status != StatusL0InvalidContentType {
		t.Fatalf("unexpected status: %v", r.Status)
	}
}

func TestGatewayAcceptsJSONWithCharset(t *testing.T) {
	g := newTestGateway()
	r := g.Validate("1.2.3.4", "application/json; charset=utf-8", 100, true)
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestGatewayRejectsOversizedRequest(t *testing.T) {
	g := newTestGateway()
	r := g.Validate("1.2.3.4", "application/json", 999999, true)
	if r.Passed || r.Status != StatusL0RequestTooLarge {
		t.Fatalf("expected request_too_large, got %+v", r)
	}
}

func TestGatewayRejectsMissingMessage(t *testing.T) {
	g := newTestGateway()
	r := g.Validate("1.2.3.4", "application/json", 100, false)
	if r.Passed || r.Status != StatusL0MissingMessage {
		t.Fatalf("expected missing_message, got %+v", r)
	}
}

func TestGatewayRateLimitsAfterLimit(t *testing.T) {
	g := newTestGateway()
	for i := 0; i < 5; i++ {
		r := g.Validate("9.9.9.9", "application/json", 10, true)
		if !r.Passed {
			t.Fatalf("request %d should have passed, got %+v", i, r)
		}
	}
	r := g.Validate("9.9.9.9", "application/json", 10, true)
	if r.Passed || r.Status != StatusL0RateLimited {
		t.Fatalf("expected sixth request to be rate limited, got %+v", r)
	}
	if r.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", r.RetryAfter)
	}
}

func TestGatewayMissingMessageDoesNotConsumeRateLimitBudget(t *testing.T) {
	g := newTestGateway()
	for i := 0; i < 5; i++ {
		r := g.Validate("8.8.8.8", "application/json", 10, false)
		if r.Passed || r.Status != StatusL0MissingMessage {
			t.Fatalf("request %d: expected missing_message, got %+v", i, r)
		}
	}
	r := g.Validate("8.8.8.8", "application/json", 10, true)
	if !r.Passed {
		t.Fatalf("expected a real message after repeated empty POSTs to still pass, got %+v", r)
	}
}

func TestHashAddrIsDeterministic(t *testing.T) {
	a := HashAddr("1.2.3.4")
	b := HashAddr("1.2.3.4")
	c := HashAddr("5.6.7.8")
	if a != b {
		t.Fatal("expected same address to hash identically")
	}
	if a == c {
		t.Fatal("expected different addresses to hash differently")
	}
}
