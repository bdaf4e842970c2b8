// Package ratelimit suppresses repeated log lines per category.
package ratelimit

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// DefaultRates allows a burst of 5 lines per second and 60 per minute
// for each category.
var DefaultRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// Limiter is safe for concurrent use. A nil *Limiter allows everything.
type Limiter struct {
	l *catrate.Limiter
}

// New creates a limiter for the given sliding windows.
// If rates is empty, limiting is disabled and New returns nil.
// Panics if rates are invalid, see catrate.NewLimiter.
func New(rates map[time.Duration]int) *Limiter {
	if len(rates) == 0 {
		return nil
	}
	return &Limiter{l: catrate.NewLimiter(rates)}
}

// Allow reports whether a line in category may be emitted now.
func (l *Limiter) Allow(category string) bool {
	if l == nil {
		return true
	}
	_, ok := l.l.Allow(category)
	return ok
}
