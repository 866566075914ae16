package processor

import (
	"context"
	"runtime"
	"time"
)

// DefaultIdleDelay is the pause between batches when no better idle signal
// is available.
const DefaultIdleDelay = 8 * time.Millisecond

// Yielder gives other work a chance to run between batches.
type Yielder interface {
	Yield(ctx context.Context) error
}

// YieldFunc adapts a function to Yielder.
type YieldFunc func(ctx context.Context) error

// Yield calls f.
func (f YieldFunc) Yield(ctx context.Context) error {
	return f(ctx)
}

// DelayYielder sleeps for a fixed duration or until ctx is done.
type DelayYielder time.Duration

// Yield waits for the delay.
func (d DelayYielder) Yield(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GoschedYielder hands the processor back to the scheduler once.
type GoschedYielder struct{}

// Yield calls runtime.Gosched.
func (GoschedYielder) Yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}
