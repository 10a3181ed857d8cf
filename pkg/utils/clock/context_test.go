package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/utils/clock"
)

func TestClock(t *testing.T) {
	now := time.Now()
	ctx := clock.With(context.Background(), func() time.Time { return now })
	gt.Equal(t, clock.Now(ctx), now)
	gt.Equal(t, clock.Since(ctx, now.Add(-time.Minute)), time.Minute)
}

func TestInherit(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	src := clock.With(context.Background(), func() time.Time { return now })

	dst := clock.Inherit(context.Background(), src)
	gt.Equal(t, clock.Now(dst), now)

	untouched := clock.Inherit(context.Background(), context.Background())
	gt.True(t, clock.Now(untouched).After(now))
}

func TestFixed(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c, advance := clock.Fixed(base)
	gt.Equal(t, c(), base)

	advance(90 * time.Second)
	gt.Equal(t, c(), base.Add(90*time.Second))
}
