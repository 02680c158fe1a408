package remote

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// RetryPolicy bounds how reads are retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
}

// DefaultRetryPolicy is used when WithRetry gets a zero policy.
var DefaultRetryPolicy = RetryPolicy{MaxTries: 3, InitialInterval: 200 * time.Millisecond}

// WithRetry wraps c so idempotent reads are retried with exponential backoff
// while they fail with a retryable *UnavailableError. Writes, locks and chat
// pass through untouched.
func WithRetry(c Client, policy RetryPolicy, logger *logrus.Entry) Client {
	if policy.MaxTries == 0 {
		policy.MaxTries = DefaultRetryPolicy.MaxTries
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &retrying{Client: c, policy: policy, logger: logger.WithField("component", "retry")}
}

type retrying struct {
	Client
	policy RetryPolicy
	logger *logrus.Entry
}

func (r *retrying) ListDocuments(ctx context.Context) ([]models.DocumentRecord, error) {
	return retry(ctx, r, "list documents", func() ([]models.DocumentRecord, error) {
		return r.Client.ListDocuments(ctx)
	})
}

func (r *retrying) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	return retry(ctx, r, "get document", func() (*models.DocumentRecord, error) {
		return r.Client.GetDocument(ctx, id)
	})
}

func (r *retrying) ListTrash(ctx context.Context) ([]models.DocumentRecord, error) {
	return retry(ctx, r, "list trash", func() ([]models.DocumentRecord, error) {
		return r.Client.ListTrash(ctx)
	})
}

func retry[T any](ctx context.Context, r *retrying, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.WithError(err).WithFields(logrus.Fields{"op": op, "wait": wait}).Warn("Retrying remote call")
		}),
	)
}
