package ratelimit

import (
	stderrors "errors"
	"testing"
	"time"
)

func TestSlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&Config{MaxRequests: 2, WindowSize: time.Second})
	defer rl.Stop()
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("first two requests must pass")
	}
	if rl.Allow("a") {
		t.Fatalf("third request inside the window must be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("other keys have their own window")
	}

	now = now.Add(1500 * time.Millisecond)
	if got := rl.Count("a"); got != 0 {
		t.Fatalf("Count after window = %d, want 0", got)
	}
	if !rl.Allow("a") {
		t.Fatalf("request after the window must pass")
	}
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&Config{MaxRequests: 5, WindowSize: time.Second})
	defer rl.Stop()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(2 * time.Second)
	rl.cleanup()
	if _, ok := rl.requests["a"]; ok {
		t.Fatalf("expired key should be removed")
	}
}

func TestLimitersCheck(t *testing.T) {
	l := NewLimiters(&LimitersConfig{
		IP:      &Config{MaxRequests: 3, WindowSize: time.Minute},
		Account: &Config{MaxRequests: 1, WindowSize: time.Minute},
		Global:  &Config{MaxRequests: 100, WindowSize: time.Minute},
	})
	defer l.Stop()

	if err := l.Check("1.2.3.4", "acc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := l.Check("1.2.3.4", "acc")
	var rle *RateLimitError
	if !stderrors.As(err, &rle) || rle.Type != "account" {
		t.Fatalf("expected account limit, got %v", err)
	}
	if err := l.Check("1.2.3.4", ""); err != nil {
		t.Fatalf("empty account skips the account window: %v", err)
	}
	err = l.Check("1.2.3.4", "")
	if !stderrors.As(err, &rle) || rle.Type != "ip" {
		t.Fatalf("expected ip limit, got %v", err)
	}
	l.Stop()
}
