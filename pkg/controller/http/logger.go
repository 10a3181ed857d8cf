package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/request_id"
)

type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware tags the request context with a request ID and logger, and
// writes one access log line per request. Bodies are logged at debug level
// only; signature headers are masked by the logger.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, reqID := request_id.Ensure(r.Context())
		logger := logging.From(ctx).With("request_id", reqID)

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, slog.String("query", r.URL.RawQuery))
		}

		if logger.Enabled(ctx, slog.LevelDebug) {
			if body, err := readBody(r); err != nil {
				logger.Warn("failed to read request body", logging.ErrAttr(err))
			} else {
				attrs = append(attrs, slog.String("body", string(body)))
			}
		}

		sw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(logging.With(ctx, logger)))

		attrs = append(attrs,
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		)
		logger.Info("access", attrs...)
	})
}
