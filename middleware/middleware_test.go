package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/ratelimit"
)

func TestStatusFor(t *testing.T) {
	cases := map[bastion.Decision]int{
		bastion.DecisionAllow:                 http.StatusOK,
		bastion.DecisionDenyUnauthenticated:   http.StatusUnauthorized,
		bastion.DecisionDenyRevoked:           http.StatusForbidden,
		bastion.DecisionDenyExpired:           http.StatusForbidden,
		bastion.DecisionDenyNoPerms:           http.StatusForbidden,
		bastion.DecisionDenyRateLimited:       http.StatusTooManyRequests,
		bastion.DecisionDenyInvalidPermission: http.StatusBadRequest,
	}
	for d, want := range cases {
		if got := statusFor(d); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", d, got, want)
		}
	}
}

func TestRateLimitHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	if h := rateLimitHeaders(nil, now); h != nil {
		t.Fatalf("unlimited credentials should get no headers, got %v", h)
	}

	h := rateLimitHeaders(&ratelimit.Result{Allowed: true, Limit: 60, Remaining: 59, ResetAt: now.Add(time.Minute)}, now)
	if h["X-RateLimit-Limit"] != "60" || h["X-RateLimit-Remaining"] != "59" {
		t.Fatalf("unexpected headers %v", h)
	}
	if h["X-RateLimit-Reset"] != "1700000060" {
		t.Fatalf("reset should be epoch seconds, got %q", h["X-RateLimit-Reset"])
	}
	if _, ok := h["Retry-After"]; ok {
		t.Fatal("allowed requests should not carry Retry-After")
	}

	h = rateLimitHeaders(&ratelimit.Result{Limit: 1, ResetAt: now.Add(1500 * time.Millisecond)}, now)
	if h["X-RateLimit-Remaining"] != "0" || h["Retry-After"] != "2" {
		t.Fatalf("throttled headers %v", h)
	}
}
