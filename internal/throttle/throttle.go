package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"media-registry/internal/logging"
	"media-registry/internal/metrics"
)

// ErrAdmissionCancelled is returned when the caller's context ends while it
// waits for a permit. The context's cause is wrapped alongside it.
var ErrAdmissionCancelled = errors.New("admission cancelled")

var log = logging.With("throttle")

// Controller is a counting gate whose capacity follows system load.
type Controller struct {
	cfg     Config
	sampler Sampler

	mu       sync.Mutex
	capacity int
	inUse    int
	waiting  int
	// wake is closed and replaced whenever a permit frees up or capacity grows.
	wake chan struct{}
}

// Permit is held for the duration of one heavy operation.
type Permit struct {
	c        *Controller
	released atomic.Bool
}

// New creates a controller. A nil sampler means capacity never changes
// after InitialPermits.
func New(cfg Config, sampler Sampler) *Controller {
	cfg = cfg.normalize()

	c := &Controller{
		cfg:      cfg,
		sampler:  sampler,
		capacity: cfg.InitialPermits,
		wake:     make(chan struct{}),
	}
	c.publish()
	return c
}

// Admit blocks until a permit is available or ctx ends.
func (c *Controller) Admit(ctx context.Context) (*Permit, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	for {
		c.mu.Lock()
		if c.inUse < c.capacity {
			c.inUse++
			c.publishLocked()
			c.mu.Unlock()

			p := &Permit{c: c}
			// A permit granted as the context ends is handed back.
			if ctx.Err() != nil {
				p.Release()
				return nil, cancelled(ctx)
			}
			return p, nil
		}
		wake := c.wake
		c.waiting++
		c.publishLocked()
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.waiting--
			c.publishLocked()
			c.mu.Unlock()
			return nil, cancelled(ctx)
		case <-wake:
			c.mu.Lock()
			c.waiting--
			c.mu.Unlock()
		}
	}
}

// Do runs fn while holding a permit. The permit is released on every exit
// path, including a panic in fn.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p, err := c.Admit(ctx)
	if err != nil {
		return err
	}
	defer p.Release()
	return fn(ctx)
}

// Release returns the permit. Calls after the first are no-ops.
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}

	c := p.c
	c.mu.Lock()
	c.inUse--
	c.broadcastLocked()
	c.publishLocked()
	c.mu.Unlock()
}

// Start re-evaluates capacity every Interval until ctx ends.
func (c *Controller) Start(ctx context.Context) {
	if c.sampler == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s, err := c.sampler.Sample(ctx)
				if err != nil {
					log.Debug("System sample failed: %v", err)
					continue
				}
				c.adjust(s)
			}
		}
	}()
}

// adjust applies one sample. Shrinking never revokes issued permits; it only
// delays new admissions until enough are released.
func (c *Controller) adjust(s Sample) {
	metrics.ThrottleMemoryPercent.Set(s.Memory())
	metrics.ThrottleCPUPercent.Set(s.CPUPercent)

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.capacity
	next := old
	direction := ""

	memory := s.Memory()
	switch {
	case memory >= c.cfg.MemoryCriticalPercent:
		next = c.cfg.MinPermits
		direction = "floor"
	case memory >= c.cfg.MemoryHighPercent || s.CPUPercent >= c.cfg.CPUHighPercent:
		next = max(old-1, c.cfg.MinPermits)
		direction = "down"
	case memory < c.cfg.MemoryTargetPercent && s.CPUPercent < c.cfg.CPUTargetPercent:
		next = min(old+1, c.cfg.MaxPermits)
		direction = "up"
	}

	if next == old {
		return
	}

	c.capacity = next
	metrics.ThrottleAdjustments.WithLabelValues(direction).Inc()
	log.Debug("Capacity %d -> %d (memory %.1f%%, cpu %.1f%%)", old, next, memory, s.CPUPercent)

	if next > old {
		c.broadcastLocked()
	}
	c.publishLocked()
}

// Capacity returns the current number of permits.
func (c *Controller) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// InUse returns the number of issued permits.
func (c *Controller) InUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// Waiting returns the number of callers blocked in Admit.
func (c *Controller) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

func (c *Controller) broadcastLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	metrics.ThrottleCapacity.Set(float64(c.capacity))
	metrics.ThrottleInUse.Set(float64(c.inUse))
	metrics.ThrottleWaiting.Set(float64(c.waiting))
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrAdmissionCancelled, context.Cause(ctx))
}
