package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits of a Controller. Zero values mean unlimited,
// except MaxTransfers which defaults to 1.
type Config struct {
	// ChunkMemory caps the bytes held by chunks in flight between the
	// mapped file and a blob store.
	ChunkMemory int64
	// MaxTransfers caps the snapshots and restores running at once.
	MaxTransfers int64
	// BytesPerSecond caps blob store throughput.
	BytesPerSecond int64
}

// Stats is a point-in-time view of a Controller.
type Stats struct {
	ActiveTransfers int64
	ChunkMemory     int64
	BytesMetered    int64
}

// Controller shares transfer slots, chunk memory and a byte-rate budget
// between snapshot writers and restores. A nil *Controller imposes no
// limits.
type Controller struct {
	chunkLimit int64
	chunks     *semaphore.Weighted
	transfers  *semaphore.Weighted
	limiter    *rate.Limiter

	active  atomic.Int64
	inUse   atomic.Int64
	metered atomic.Int64
}

// NewController returns a Controller enforcing cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{
		chunkLimit: cfg.ChunkMemory,
		transfers:  semaphore.NewWeighted(max(cfg.MaxTransfers, 1)),
	}
	if cfg.ChunkMemory > 0 {
		c.chunks = semaphore.NewWeighted(cfg.ChunkMemory)
	}
	if cfg.BytesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), int(cfg.BytesPerSecond))
	}
	return c
}

func noop() {}

// BeginTransfer waits for a transfer slot. end must be called once the
// transfer is over.
func (c *Controller) BeginTransfer(ctx context.Context) (end func(), err error) {
	if c == nil {
		return noop, nil
	}
	if err := c.transfers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return c.transferEnd(), nil
}

// TryBeginTransfer takes a transfer slot if one is free.
func (c *Controller) TryBeginTransfer() (end func(), ok bool) {
	if c == nil {
		return noop, true
	}
	if !c.transfers.TryAcquire(1) {
		return nil, false
	}
	return c.transferEnd(), true
}

func (c *Controller) transferEnd() func() {
	c.active.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.active.Add(-1)
			c.transfers.Release(1)
		}
	}
}

// ReserveChunk blocks until n bytes of chunk memory are available. A chunk
// larger than the whole budget waits for the entire budget.
func (c *Controller) ReserveChunk(ctx context.Context, n int64) (release func(), err error) {
	if c == nil || n <= 0 {
		return noop, nil
	}
	weight := n
	if c.chunks != nil {
		weight = min(n, c.chunkLimit)
		if err := c.chunks.Acquire(ctx, weight); err != nil {
			return nil, err
		}
	}
	c.inUse.Add(n)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.inUse.Add(-n)
			if c.chunks != nil {
				c.chunks.Release(weight)
			}
		}
	}, nil
}

// Throttle waits until the byte-rate budget admits n bytes. Requests
// larger than one second of budget are admitted in pieces.
func (c *Controller) Throttle(ctx context.Context, n int) error {
	if c == nil {
		return nil
	}
	c.metered.Add(int64(n))
	if c.limiter == nil {
		return ctx.Err()
	}
	for burst := c.limiter.Burst(); n > 0; {
		step := min(n, burst)
		if err := c.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Stats reports current usage.
func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		ActiveTransfers: c.active.Load(),
		ChunkMemory:     c.inUse.Load(),
		BytesMetered:    c.metered.Load(),
	}
}
