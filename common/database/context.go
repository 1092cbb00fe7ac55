// Package database holds helpers shared by the relay's SQL repositories.
package database

import (
	"context"
	"time"
)

// Timeouts for audit log statements. Writes happen after the response is
// decided, so they are kept short.
const (
	ReadTimeout  = 5 * time.Second
	WriteTimeout = 3 * time.Second
)

// ReadContext bounds a SELECT.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(parent, ReadTimeout)
}

// WriteContext bounds an INSERT or UPDATE.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(parent, WriteTimeout)
}

// withTimeout keeps an earlier deadline already set on parent.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) < d {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
