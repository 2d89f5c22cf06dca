package wom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
)

// windowSlack is added to every wait so a request never lands exactly on the
// edge of the previous window.
const windowSlack = 100 * time.Millisecond

// RateLimiter allows at most quota requests in any rolling window. It keeps the
// times of the last quota requests; once full, Wait sleeps until the oldest of
// them has left the window.
type RateLimiter struct {
	clock  clock.Clock
	logger *slog.Logger
	quota  int
	window time.Duration

	mu     sync.Mutex
	recent []time.Time // ring buffer, recent[next] is the oldest once full
	next   int
}

// NewRateLimiter creates a limiter; a non-positive quota disables limiting
func NewRateLimiter(clk clock.Clock, logger *slog.Logger, quota int, window time.Duration) *RateLimiter {
	r := &RateLimiter{
		clock:  clk,
		logger: logger,
		quota:  quota,
		window: window,
	}
	if quota > 0 {
		r.recent = make([]time.Time, 0, quota)
	}
	return r
}

// Wait reserves one request, sleeping first if quota requests already fall
// inside the window ending now
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.quota <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.recent) < r.quota {
		r.recent = append(r.recent, r.clock.Now())
		return nil
	}

	oldest := r.recent[r.next]
	if wait := oldest.Add(r.window).Sub(r.clock.Now()); wait > 0 {
		wait += windowSlack
		r.logger.Info("rate limit reached, sleeping", slog.Duration("wait", wait))
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	r.recent[r.next] = r.clock.Now()
	r.next = (r.next + 1) % r.quota
	return nil
}
