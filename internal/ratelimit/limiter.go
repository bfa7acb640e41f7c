// Package ratelimit throttles MCP tool calls and HTTP allocation requests
// with one token bucket per key.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out a token bucket per key. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	nowFunc  func() time.Time
}

// NewLimiter creates a limiter refilling perSecond tokens per second up to
// burst. Every key starts with a full bucket. A zero rate allows exactly
// burst calls per key.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		nowFunc:  time.Now,
	}
}

// PerMinute is a convenience for NewLimiter(n/60, burst).
func PerMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60.0, burst)
}

// Allow takes one token from key's bucket, reporting false when empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Burst returns the bucket size.
func (l *Limiter) Burst() int {
	return l.burst
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// Tool names served over MCP.
const (
	ToolAllocate      = "tieralloc_allocate"
	ToolDeliveryTypes = "tieralloc_delivery_types"
	ToolDecode        = "tieralloc_decode"
	ToolHistory       = "tieralloc_history"
)

// NewToolLimiters returns the default per-tool limits.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolAllocate:      PerMinute(30, 5),
		ToolDeliveryTypes: NewLimiter(1.0, 10),
		ToolDecode:        NewLimiter(1.0, 10),
		ToolHistory:       NewLimiter(1.0, 10),
	}
}

// CheckLimit returns an error when tool is over its limit. Tools without a
// limiter are never throttled.
func CheckLimit(limiters ToolLimiters, tool string) error {
	limiter, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !limiter.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
