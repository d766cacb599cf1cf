// Package database holds timeouts shared by the store implementations.
package database

import (
	"context"
	"time"
)

const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	// DefaultBulkTimeout covers batch inserts such as imports and
	// detection runs.
	DefaultBulkTimeout = 30 * time.Second
)

// QueryContext bounds a read.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext bounds a single-statement or small transactional write.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext bounds batch writes and migrations.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
