package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrInvalidInterval = errors.New("scheduler: invalid tick interval")

// TickFunc advances the world by elapsed. It is never called concurrently
// with itself.
type TickFunc func(ctx context.Context, now time.Time, elapsed time.Duration)

// Beat describes one completed tick.
type Beat struct {
	Seq     uint64
	At      time.Time
	Elapsed time.Duration
	Took    time.Duration
}

type Option func(*Driver)

func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver calls a TickFunc once per interval with the real time elapsed
// since the previous call, and publishes a Beat after each one.
type Driver struct {
	mu       sync.Mutex
	tick     TickFunc
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	out      chan Beat
	wakeup   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopped  bool
	seq      uint64
	dropped  uint64
	slow     uint64
}

func NewDriver(tick TickFunc, interval time.Duration, bufferSize int, opts ...Option) (*Driver, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if tick == nil {
		return nil, errors.New("scheduler: tick func is required")
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	d := &Driver{
		tick:     tick,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
		out:      make(chan Beat, bufferSize),
		wakeup:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// C is closed once the driver stops.
func (d *Driver) C() <-chan Beat {
	return d.out
}

func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.loop(ctx)
}

// Stop waits for an in-flight tick to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.stopped = true
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.mu.Unlock()
	<-d.doneCh
}

// Nudge requests an immediate tick, for example after a command changed
// state. Nudges coalesce.
func (d *Driver) Nudge() {
	select {
	case d.wakeup <- struct{}{}:
	default:
	}
}

func (d *Driver) Ticks() uint64   { return atomic.LoadUint64(&d.seq) }
func (d *Driver) Dropped() uint64 { return atomic.LoadUint64(&d.dropped) }
func (d *Driver) Slow() uint64    { return atomic.LoadUint64(&d.slow) }

func (d *Driver) loop(ctx context.Context) {
	defer close(d.doneCh)
	defer close(d.out)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	last := d.now()
	d.logger.Debug("tick driver started", "interval", d.interval)
	for {
		select {
		case <-ticker.C:
		case <-d.wakeup:
		case <-d.stopCh:
			d.logger.Debug("tick driver stopped", "ticks", d.Ticks(), "dropped", d.Dropped())
			return
		case <-ctx.Done():
			d.logger.Debug("tick driver context done", "error", ctx.Err())
			return
		}
		last = d.runOnce(ctx, last)
	}
}

func (d *Driver) runOnce(ctx context.Context, last time.Time) time.Time {
	start := d.now()
	elapsed := start.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	d.tick(ctx, start, elapsed)
	took := d.now().Sub(start)

	beat := Beat{Seq: atomic.AddUint64(&d.seq, 1), At: start, Elapsed: elapsed, Took: took}
	if took > d.interval {
		atomic.AddUint64(&d.slow, 1)
		d.logger.Warn("slow tick", "seq", beat.Seq, "took", took, "interval", d.interval)
	}
	select {
	case d.out <- beat:
	default:
		atomic.AddUint64(&d.dropped, 1)
	}
	return start
}
