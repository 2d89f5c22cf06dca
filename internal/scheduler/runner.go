package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/services/inactivity"
)

// Syncer runs a roster reconciliation
type Syncer interface {
	Run(ctx context.Context, opts clansync.Options) (*clansync.Result, error)
}

// InactivityChecker runs an inactivity check
type InactivityChecker interface {
	Run(ctx context.Context) (*inactivity.Result, error)
}

// Runner serializes every run against the store and the external service,
// whether scheduled or requested. A run started while another is in
// progress fails with model.ErrRunInProgress.
type Runner struct {
	syncer     Syncer
	inactivity InactivityChecker
	logger     *slog.Logger

	mu      sync.Mutex
	running string
}

// NewRunner creates a Runner
func NewRunner(syncer Syncer, inactivity InactivityChecker, logger *slog.Logger) *Runner {
	return &Runner{
		syncer:     syncer,
		inactivity: inactivity,
		logger:     logger,
	}
}

func (r *Runner) acquire(name string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running != "" {
		r.logger.Warn("run rejected", slog.String("run", name), slog.String("in_progress", r.running))
		return nil, model.ErrRunInProgress
	}
	r.running = name
	return func() {
		r.mu.Lock()
		r.running = ""
		r.mu.Unlock()
	}, nil
}

// Running returns the name of the run in progress, or ""
func (r *Runner) Running() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Sync runs a reconciliation under the run lock
func (r *Runner) Sync(ctx context.Context, opts clansync.Options) (*clansync.Result, error) {
	// Usage errors are reported even while another run holds the lock
	if opts.Force && opts.DryRun {
		return nil, model.ErrForceDryRun
	}
	release, err := r.acquire("sync")
	if err != nil {
		return nil, err
	}
	defer release()
	return r.syncer.Run(ctx, opts)
}

// Inactivity runs an inactivity check under the run lock
func (r *Runner) Inactivity(ctx context.Context) (*inactivity.Result, error) {
	release, err := r.acquire("inactivity")
	if err != nil {
		return nil, err
	}
	defer release()
	return r.inactivity.Run(ctx)
}
