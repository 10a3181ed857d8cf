package async

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/dryrun"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/request_id"
)

type ctxSyncKey struct{}

// WithSync makes Dispatch run handlers inline. Used by tests and the one-shot CLI
// commands so that an orchestration finishes before the caller returns.
func WithSync(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxSyncKey{}, true)
}

func IsSync(ctx context.Context) bool {
	v, ok := ctx.Value(ctxSyncKey{}).(bool)
	return ok && v
}

var inflight sync.WaitGroup

// Dispatch executes a handler on a detached background context with panic
// recovery. Errors are reported through errs.Handle, never returned.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := newBackgroundContext(ctx)

	if IsSync(ctx) {
		run(newCtx, handler)
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		run(newCtx, handler)
	}()
}

// Wait blocks until every dispatched handler has returned or ctx is done.
func Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "dispatched handlers did not finish")
	}
}

func run(ctx context.Context, handler func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			errs.Handle(ctx, goerr.New("panic in async handler",
				goerr.V("recover", r),
				goerr.V("stack", string(stack))))
		}
	}()

	if err := handler(ctx); err != nil {
		errs.Handle(ctx, err)
	}
}

// newBackgroundContext detaches from the request lifetime but keeps the values
// the orchestration depends on.
func newBackgroundContext(ctx context.Context) context.Context {
	newCtx := context.Background()
	newCtx = logging.With(newCtx, logging.From(ctx))
	newCtx = clock.Inherit(newCtx, ctx)
	newCtx = dryrun.With(newCtx, dryrun.IsDryRun(ctx))
	if reqID := request_id.FromContext(ctx); reqID != "" {
		newCtx = request_id.With(newCtx, reqID)
	}
	if IsSync(ctx) {
		newCtx = WithSync(newCtx)
	}
	return newCtx
}
