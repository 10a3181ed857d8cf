package clock

import (
	"context"
	"sync"
	"time"
)

type ctxClockKey struct{}

type Clock func() time.Time

func Now(ctx context.Context) time.Time {
	clock, ok := ctx.Value(ctxClockKey{}).(Clock)
	if !ok {
		return time.Now()
	}
	return clock()
}

func Since(ctx context.Context, t time.Time) time.Duration {
	return Now(ctx).Sub(t)
}

func With(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, ctxClockKey{}, clock)
}

// Inherit copies the clock of src, if any, into dst.
func Inherit(dst, src context.Context) context.Context {
	if clock, ok := src.Value(ctxClockKey{}).(Clock); ok {
		return With(dst, clock)
	}
	return dst
}

// Fixed returns a Clock frozen at t and a function to move it forward.
func Fixed(t time.Time) (Clock, func(d time.Duration)) {
	var mu sync.Mutex
	current := t
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return clock, advance
}
