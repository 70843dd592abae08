// Package ratelimit paces outbound API requests with a token bucket.
// Hosted rerank endpoints meter trial keys per minute, so the bucket is
// configured in requests per minute.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures the request pacing.
type Config struct {
	// RequestsPerMinute is the sustained request rate.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	// Burst is the number of requests allowed before pacing kicks in.
	// Defaults to the full per-minute allowance.
	Burst int `yaml:"burst"`
}

// DefaultConfig matches the limits of a trial rerank API key.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 10,
	}
}

// Bucket implements token bucket rate limiting.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewBucket creates a token bucket for the configured rate.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 10
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RequestsPerMinute)
		if config.Burst < 1 {
			config.Burst = 1
		}
	}

	return &Bucket{
		tokens:     float64(config.Burst),
		maxTokens:  float64(config.Burst),
		refillRate: config.RequestsPerMinute / 60.0,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		needed := 1 - b.tokens
		wait := time.Duration(needed / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill adds tokens based on time elapsed (must be called with lock held).
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Tokens returns the current number of available tokens.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// WaitTime returns how long the next request would have to wait.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	if b.tokens >= 1 {
		return 0
	}

	needed := 1 - b.tokens
	seconds := needed / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}
