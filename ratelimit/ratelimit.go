package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config bounds one sliding window
type Config struct {
	MaxRequests     int
	WindowSize      time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MaxRequests:     10,
		WindowSize:      time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter is a sliding-window limiter keyed by caller identity
type RateLimiter struct {
	config   *Config
	requests map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

func NewRateLimiter(config *Config) *RateLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	rl := &RateLimiter{
		config:      config,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Allow records a request for key and reports whether it fits the window
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := prune(rl.requests[key], now.Add(-rl.config.WindowSize))
	if len(recent) >= rl.config.MaxRequests {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, now)
	return true
}

// Count returns the number of requests from key inside the current window
func (rl *RateLimiter) Count(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(prune(rl.requests[key], rl.now().Add(-rl.config.WindowSize)))
}

func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, stamps := range rl.requests {
		if recent := prune(stamps, cutoff); len(recent) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = recent
		}
	}
}

// prune drops stamps at or before cutoff. stamps are in arrival order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Limiters combines per-IP, per-account and node-wide windows
type Limiters struct {
	ip      *RateLimiter
	account *RateLimiter
	global  *RateLimiter
}

type LimitersConfig struct {
	IP      *Config
	Account *Config
	Global  *Config
}

func DefaultLimitersConfig() *LimitersConfig {
	return &LimitersConfig{
		IP:      &Config{MaxRequests: 50, WindowSize: time.Second, CleanupInterval: 5 * time.Minute},
		Account: &Config{MaxRequests: 20, WindowSize: time.Second, CleanupInterval: 5 * time.Minute},
		Global:  &Config{MaxRequests: 1000, WindowSize: time.Second, CleanupInterval: 5 * time.Minute},
	}
}

func NewLimiters(config *LimitersConfig) *Limiters {
	if config == nil {
		config = DefaultLimitersConfig()
	}
	return &Limiters{
		ip:      NewRateLimiter(config.IP),
		account: NewRateLimiter(config.Account),
		global:  NewRateLimiter(config.Global),
	}
}

// Check returns a *RateLimitError naming the first exhausted window. An empty account skips
// the per-account window.
func (l *Limiters) Check(ip, account string) error {
	if !l.ip.Allow(ip) {
		return NewRateLimitError("ip", ip)
	}
	if account != "" && !l.account.Allow(account) {
		return NewRateLimitError("account", account)
	}
	if !l.global.Allow("global") {
		return NewRateLimitError("global", "global")
	}
	return nil
}

func (l *Limiters) Stop() {
	l.ip.Stop()
	l.account.Stop()
	l.global.Stop()
}

type RateLimitError struct {
	Type string
	Key  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s '%s'", e.Type, e.Key)
}

func NewRateLimitError(rateType, key string) *RateLimitError {
	return &RateLimitError{Type: rateType, Key: key}
}
