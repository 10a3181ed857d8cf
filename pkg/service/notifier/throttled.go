package notifier

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
	"golang.org/x/time/rate"
)

// Throttled wraps a notifier with a token bucket shared by all events and retries
// approval requests with exponential backoff. Informational events that exceed
// the bucket are dropped rather than queued.
type Throttled struct {
	inner         interfaces.Notifier
	limiter       *rate.Limiter
	maxTries      uint
	retryInterval time.Duration
}

type ThrottleOption func(*Throttled)

// WithRate sets the sustained event rate and burst.
func WithRate(every time.Duration, burst int) ThrottleOption {
	return func(x *Throttled) {
		x.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

func WithMaxTries(n uint) ThrottleOption {
	return func(x *Throttled) {
		x.maxTries = n
	}
}

func WithRetryInterval(d time.Duration) ThrottleOption {
	return func(x *Throttled) {
		x.retryInterval = d
	}
}

func NewThrottled(inner interfaces.Notifier, opts ...ThrottleOption) *Throttled {
	x := &Throttled{
		inner:         inner,
		limiter:       rate.NewLimiter(rate.Every(time.Second), 5),
		maxTries:      4,
		retryInterval: time.Second,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

var _ interfaces.Notifier = &Throttled{}

func (x *Throttled) NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = x.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := x.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(goerr.Wrap(err, "rate limiter wait aborted", goerr.T(errs.TagRateLimit)))
		}
		if err := x.inner.NotifyApprovalRequest(ctx, ev); err != nil {
			logging.From(ctx).Warn("approval request notification failed, retrying",
				"incident_id", ev.Incident.ID,
				logging.ErrAttr(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(x.maxTries),
	)

	if err != nil {
		metrics.Notification("failed")
		return goerr.Wrap(err, "failed to deliver approval request",
			goerr.V("incident_id", ev.Incident.ID),
			goerr.T(errs.TagExternal))
	}
	metrics.Notification("delivered")
	return nil
}

func (x *Throttled) NotifyTransition(ctx context.Context, ev *event.TransitionEvent) {
	if !x.limiter.Allow() {
		logging.From(ctx).Debug("transition notification dropped by rate limit", "incident_id", ev.Incident.ID)
		metrics.Notification("dropped")
		return
	}
	x.inner.NotifyTransition(ctx, ev)
}

func (x *Throttled) NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent) {
	if !x.limiter.Allow() {
		logging.From(ctx).Debug("dead letter notification dropped by rate limit", "dead_letter_id", ev.DeadLetter.ID)
		metrics.Notification("dropped")
		return
	}
	x.inner.NotifyDeadLetter(ctx, ev)
}
