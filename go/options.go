package corral

import (
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// StartOptions bounds a run. Zero values are unbounded.
type StartOptions = cpu.StartOptions

type config struct {
	log      *zap.Logger
	pageSize uint64
	builder  cpu.Builder
}

// Option configures Open.
type Option func(*config)

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithPageSize raises the region granularity. It must be a power of two and a
// multiple of the architecture's page size.
func WithPageSize(size uint64) Option {
	return func(c *config) { c.pageSize = size }
}

// WithBuilder replaces the architecture's engine.
func WithBuilder(b cpu.Builder) Option {
	return func(c *config) { c.builder = b }
}
