package suppliers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles a Fetcher to a per-minute budget and bounds each call with a timeout.
type Limited struct {
	next    Fetcher
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited wraps next. A non-positive perMinute disables throttling.
func NewLimited(next Fetcher, perMinute int, timeout time.Duration) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

// Fetch waits for a slot on the caller's context and only then starts the timeout, so time
// spent queued behind the supplier's budget is not charged to the request.
func (l *Limited) Fetch(ctx context.Context, sku string) (Snapshot, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("%w: rate limit wait: %v", ErrScraping, err)
	}
	fetchCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	snap, err := l.next.Fetch(fetchCtx, sku)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrScraping) {
		return Snapshot{}, err
	}
	return Snapshot{}, fmt.Errorf("%w: %v", ErrScraping, err)
}
