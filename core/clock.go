package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// BlockClock supplies the current block height. Node reads it exactly once per
// operation so every settlement within a call observes the same height.
type BlockClock interface {
	BlockNumber() uint64
}

// ManualClock is a BlockClock advanced explicitly, used by tests and by
// embedders that drive heights from an external chain.
type ManualClock struct {
	height atomic.Uint64
}

// NewManualClock starts the clock at height.
func NewManualClock(height uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(height)
	return c
}

func (c *ManualClock) BlockNumber() uint64 { return c.height.Load() }

// Set moves the clock to height. Heights never go backwards.
func (c *ManualClock) Set(height uint64) {
	for {
		current := c.height.Load()
		if height <= current || c.height.CompareAndSwap(current, height) {
			return
		}
	}
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 {
	return c.height.Add(n)
}

// TickerClock produces one block per interval, emulating a chain for devnet
// deployments.
type TickerClock struct {
	height   atomic.Uint64
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
}

// NewTickerClock returns a clock starting at height that advances every
// interval once Run is called. A nil clock uses wall time.
func NewTickerClock(height uint64, interval time.Duration, clock clockwork.Clock, log *slog.Logger) *TickerClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	c := &TickerClock{interval: interval, clock: clock, log: log}
	c.height.Store(height)
	return c
}

func (c *TickerClock) BlockNumber() uint64 { return c.height.Load() }

// Run advances the height on every tick until ctx is cancelled.
func (c *TickerClock) Run(ctx context.Context) {
	c.log.Info("block clock started", "height", c.BlockNumber(), "interval", c.interval.String())
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("block clock stopped", "height", c.BlockNumber())
			return
		case <-ticker.Chan():
			height := c.height.Add(1)
			c.log.Debug("block produced", "height", height)
		}
	}
}
