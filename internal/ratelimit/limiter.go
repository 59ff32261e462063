// Package ratelimit throttles repeated actions per key.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether another action for key fits into limit per window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// Nop admits everything
type Nop struct{}

// Allow always returns true
func (Nop) Allow(context.Context, string, int, time.Duration) bool { return true }
