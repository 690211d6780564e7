package app

import (
	"context"
	"time"
)

// TickSource yields one value per elapsed second until stop is called.
type TickSource func() (ticks <-chan time.Time, stop func())

// SecondTicker is the production TickSource.
func SecondTicker() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Second)
	return t.C, t.Stop
}

// countdown drives a session timer. onTick reports whether time ran out;
// onExpire then runs once and the loop ends.
type countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startCountdown(source TickSource, onTick func() bool, onExpire func()) *countdown {
	ctx, cancel := context.WithCancel(context.Background())
	c := &countdown{cancel: cancel, done: make(chan struct{})}
	ticks, stop := source()

	go func() {
		defer close(c.done)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				// A tick and a cancel can be ready together; cancel wins.
				if ctx.Err() != nil {
					return
				}
				if onTick() {
					onExpire()
					return
				}
			}
		}
	}()
	return c
}

// Stop cancels the countdown. It never waits for the loop, so it is safe to
// call while holding the session lock.
func (c *countdown) Stop() {
	c.cancel()
}
