package errs

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/request_id"
)

// sentryTagKeys are goerr values promoted to Sentry tags so events can be
// searched by incident.
var sentryTagKeys = []string{"incident_id", "action", "target", "state"}

// Handle logs err and reports it to Sentry. It never panics, even when the
// logger itself fails.
func Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[CRITICAL] error handling crashed: original_error=%s, panic=%v\n", err.Error(), r)
		}
	}()

	values := goerr.Values(err)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if reqID := request_id.FromContext(ctx); reqID != "" {
			scope.SetTag("request_id", reqID)
		}
		for _, key := range sentryTagKeys {
			if v, ok := values[key]; ok {
				scope.SetTag(key, fmt.Sprint(v))
			}
		}
		for k, v := range values {
			scope.SetExtra(k, v)
		}
	})
	evID := hub.CaptureException(err)

	logging.From(ctx).Error(err.Error(),
		logging.ErrAttr(err),
		slog.Any("sentry.id", evID),
	)
}
