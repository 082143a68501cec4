package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrentEmbeds is used when Config.MaxConcurrentEmbeds is 0.
const DefaultMaxConcurrentEmbeds = 4

// Config holds resource limits.
type Config struct {
	// MaxConcurrentEmbeds is the maximum number of embedding calls in flight.
	// If 0, defaults to DefaultMaxConcurrentEmbeds.
	MaxConcurrentEmbeds int64

	// EmbedRequestsPerSec caps the embedding request rate.
	// If 0, unlimited.
	EmbedRequestsPerSec float64

	// EmbedBurst is the token bucket size for EmbedRequestsPerSec.
	// If 0, defaults to 1.
	EmbedBurst int

	// MemoryLimitBytes is the hard limit for vector bytes held by
	// in-flight ingestion batches. If 0, usage is only tracked.
	MemoryLimitBytes int64

	// IOLimitBytesPerSec is the maximum snapshot write throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages shared resources.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Embedding
	embedSem     *semaphore.Weighted
	embedLimiter *rate.Limiter // nil if unlimited

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentEmbeds <= 0 {
		cfg.MaxConcurrentEmbeds = DefaultMaxConcurrentEmbeds
	}
	if cfg.EmbedBurst <= 0 {
		cfg.EmbedBurst = 1
	}

	c := &Controller{
		cfg:      cfg,
		embedSem: semaphore.NewWeighted(cfg.MaxConcurrentEmbeds),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.EmbedRequestsPerSec > 0 {
		c.embedLimiter = rate.NewLimiter(rate.Limit(cfg.EmbedRequestsPerSec), cfg.EmbedBurst)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
// Requests larger than the limit are clamped to the limit.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, c.clamp(bytes)); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(c.clamp(bytes)) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(c.clamp(bytes))
	}
	c.memUsed.Add(-bytes)
}

func (c *Controller) clamp(bytes int64) int64 {
	return min(bytes, c.cfg.MemoryLimitBytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireEmbed reserves an embedding slot and waits for the rate limiter.
// Blocks if all slots are busy.
func (c *Controller) AcquireEmbed(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.embedSem.Acquire(ctx, 1); err != nil {
		return err
	}
	if c.embedLimiter != nil {
		if err := c.embedLimiter.Wait(ctx); err != nil {
			c.embedSem.Release(1)
			return err
		}
	}
	return nil
}

// TryAcquireEmbed attempts to reserve an embedding slot without blocking.
// It ignores the rate limiter.
func (c *Controller) TryAcquireEmbed() bool {
	if c == nil {
		return true
	}
	return c.embedSem.TryAcquire(1)
}

// ReleaseEmbed releases an embedding slot.
func (c *Controller) ReleaseEmbed() {
	if c == nil {
		return
	}
	c.embedSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
