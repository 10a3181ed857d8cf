// Package dryrun carries the dry-run switch through a context. When set, the
// executor records what it would run instead of touching the target.
package dryrun

import "context"

type ctxDryRunKey struct{}

func With(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, ctxDryRunKey{}, dryRun)
}

func IsDryRun(ctx context.Context) bool {
	value, _ := ctx.Value(ctxDryRunKey{}).(bool)
	return value
}
