/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package ratelimit bounds how many action dispatches run at once and how
// many a single user may start per hour. Request throttling lives in the
// HTTP middleware; this limiter protects the remote API from fan-out.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config configures dispatch limits. Zero disables a limit.
type Config struct {
	// MaxConcurrent is the server-wide limit on simultaneous dispatches.
	MaxConcurrent int

	// MaxConcurrentPerUser is the per-user limit on simultaneous dispatches.
	MaxConcurrentPerUser int

	// MaxPerHourPerUser is the per-user limit on dispatches per hour.
	MaxPerHourPerUser int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:        64,
		MaxConcurrentPerUser: 4,
		MaxPerHourPerUser:    0,
	}
}

// Decision represents whether a dispatch may start and why.
type Decision struct {
	Allowed bool
	Reason  string
}

// Limiter tracks dispatch concurrency and rates.
type Limiter struct {
	config Config
	now    func() time.Time

	mu sync.Mutex

	concurrent map[string]int // user → in flight
	total      int

	history []startRecord
}

type startRecord struct {
	key  string
	time time.Time
}

// NewLimiter creates a dispatch limiter.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		config:     cfg,
		now:        time.Now,
		concurrent: make(map[string]int),
	}
}

// Acquire starts a dispatch for key when every limit allows it. An allowed
// dispatch must be followed by Release.
func (l *Limiter) Acquire(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneHistory(now)

	if limit := l.config.MaxConcurrentPerUser; limit > 0 && l.concurrent[key] >= limit {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("per-user concurrency limit reached (%d/%d)", l.concurrent[key], limit),
		}
	}
	if limit := l.config.MaxConcurrent; limit > 0 && l.total >= limit {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("server-wide concurrency limit reached (%d/%d)", l.total, limit),
		}
	}
	if limit := l.config.MaxPerHourPerUser; limit > 0 {
		if n := l.countKey(key); n >= limit {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("per-user rate limit reached (%d dispatches in last hour, max %d)", n, limit),
			}
		}
	}

	l.concurrent[key]++
	l.total++
	if l.config.MaxPerHourPerUser > 0 {
		l.history = append(l.history, startRecord{key: key, time: now})
	}
	return Decision{Allowed: true}
}

// Release marks a dispatch for key as finished.
func (l *Limiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.concurrent[key] > 0 {
		l.concurrent[key]--
		if l.concurrent[key] == 0 {
			delete(l.concurrent, key)
		}
	}
	if l.total > 0 {
		l.total--
	}
}

// Stats is a snapshot of the limiter state.
type Stats struct {
	InFlight       int
	InFlightByUser map[string]int
	LastHour       int
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneHistory(l.now())

	byUser := make(map[string]int, len(l.concurrent))
	for k, v := range l.concurrent {
		byUser[k] = v
	}
	return Stats{
		InFlight:       l.total,
		InFlightByUser: byUser,
		LastHour:       len(l.history),
	}
}

// pruneHistory removes records older than 1 hour.
func (l *Limiter) pruneHistory(now time.Time) {
	cutoff := now.Add(-1 * time.Hour)
	i := 0
	for i < len(l.history) && l.history[i].time.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.history = l.history[i:]
	}
}

func (l *Limiter) countKey(key string) int {
	count := 0
	for _, r := range l.history {
		if r.key == key {
			count++
		}
	}
	return count
}
