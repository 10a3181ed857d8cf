package dryrun_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/utils/dryrun"
)

func TestDryRun(t *testing.T) {
	gt.False(t, dryrun.IsDryRun(context.Background()))

	ctx := dryrun.With(context.Background(), true)
	gt.True(t, dryrun.IsDryRun(ctx))
	gt.True(t, dryrun.IsDryRun(ctx))

	ctx = dryrun.With(ctx, false)
	gt.False(t, dryrun.IsDryRun(ctx))
}
