package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig bounds how often a single client may call the gateway.
// Zero disables the corresponding limit.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`

	// MaxClients caps the number of tracked clients. When full, idle clients
	// are evicted first; if none are idle, new clients are refused.
	MaxClients int `yaml:"max_clients"`
}

const defaultMaxClients = 10000

// Enabled reports whether any limit is configured.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerMin > 0
}

// RateLimiter implements a per-key sliding window.
// Each key tracks the timestamps of its requests within the last minute.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	max     int
	clients map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}
	return &RateLimiter{
		window:  time.Minute,
		limit:   cfg.RequestsPerMin,
		max:     cfg.MaxClients,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a request for key. It returns ErrRateLimited if key has
// already used its budget for the current window.
func (rl *RateLimiter) Allow(key string) error {
	if rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events, ok := rl.clients[key]
	if !ok && len(rl.clients) >= rl.max {
		rl.sweep(now)
		if len(rl.clients) >= rl.max {
			return ErrRateLimited
		}
	}

	events = evict(events, now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.clients[key] = events
		return ErrRateLimited
	}
	rl.clients[key] = append(events, now)
	return nil
}

// Clients returns the number of tracked keys.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// sweep drops keys with no request inside the window. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-rl.window)
	for key, events := range rl.clients {
		if len(evict(events, cutoff)) == 0 {
			delete(rl.clients, key)
		}
	}
}

// evict removes events before cutoff. Events are chronologically ordered.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
