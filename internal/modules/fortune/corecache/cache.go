// Package corecache stores core readings by seed key with a TTL and FIFO
// eviction once the capacity is exceeded.
package corecache

import (
	"context"
	"time"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultCapacity = 100
)

// Cache is the contract every backend honours: entries expire after the TTL and
// the oldest-inserted entry is evicted when the capacity is exceeded.
type Cache interface {
	Get(ctx context.Context, key string) (reading.CoreReading, bool, error)
	Put(ctx context.Context, key string, value reading.CoreReading) error
	Evict(ctx context.Context, key string) error
}

// Options configures a backend.
type Options struct {
	TTL      time.Duration
	Capacity int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	return o
}
