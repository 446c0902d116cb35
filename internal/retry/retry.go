package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/cenkalti/backoff/v4"
)

// ErrOffline short-circuits an operation before any network attempt when
// the client is in a detected offline state.
var ErrOffline = errors.New("error client is offline")

type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// ExhaustedError wraps the final cause after the retry budget is spent.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// newBackOff builds the pure doubling schedule: BaseDelay * 2^attempt, no
// jitter. MaxInterval is pinned at the int64 ceiling so the schedule never
// caps out within any reachable retry budget.
func newBackOff(policy Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	return b
}

// Do executes fn with bounded exponential backoff: delays grow as
// BaseDelay * 2^attempt with no jitter. Errors matched by permanent are
// never retried and propagate as-is. When offline reports true, Do returns
// ErrOffline without attempting fn at all.
func Do[T any](
	ctx context.Context,
	op string,
	policy Policy,
	offline func() bool,
	permanent func(error) bool,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	var result T

	if offline != nil && offline() {
		slog.Warn("skipping operation while offline", slog.String("rqID", rqID), slog.String("op", op))
		return result, ErrOffline
	}

	b := newBackOff(policy)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++

		v, err := fn(ctx)
		if err != nil {
			if permanent != nil && permanent(err) {
				return backoff.Permanent(err)
			}
			slog.Warn(
				"transient failure, will retry",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.Int("attempt", attempts),
				slog.String("err", err.Error()),
			)
			return err
		}

		result = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(policy.MaxRetries)), ctx))

	if err != nil {
		if (permanent != nil && permanent(err)) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		slog.Error("retries exhausted", slog.String("rqID", rqID), slog.String("op", op), slog.Int("attempts", attempts), slog.String("err", err.Error()))
		return result, &ExhaustedError{Op: op, Attempts: attempts, Err: err}
	}

	return result, nil
}
