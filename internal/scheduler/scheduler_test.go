package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcoot/clanadmin/internal/dependencies/mocks"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/services/inactivity"
	"github.com/mcoot/clanadmin/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type event struct {
	job string
	at  time.Time
}

// recorder implements Syncer, InactivityChecker and Notifier
type recorder struct {
	mu     sync.Mutex
	clock  *mocks.MockClock
	events []event
	posts  []string

	// cancel is called once limit runs have happened
	limit  int
	cancel context.CancelFunc

	// block, when set, holds sync runs until closed
	block   chan struct{}
	started chan struct{}
	syncErr error
}

func (r *recorder) record(job string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{job: job, at: r.clock.Now()})
	if r.limit > 0 && len(r.events) >= r.limit && r.cancel != nil {
		r.cancel()
	}
}

func (r *recorder) Run(ctx context.Context, opts clansync.Options) (*clansync.Result, error) {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	r.record("sync")
	if r.syncErr != nil {
		return nil, r.syncErr
	}
	return &clansync.Result{Options: opts, Report: "sync report"}, nil
}

type inactivityRecorder struct{ *recorder }

func (r inactivityRecorder) Run(ctx context.Context) (*inactivity.Result, error) {
	r.record("inactivity")
	return &inactivity.Result{Report: "inactivity report"}, nil
}

func (r *recorder) Post(ctx context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, title+": "+body)
	return nil
}

func newRecorder(start time.Time) *recorder {
	return &recorder{clock: mocks.NewMockClock(start)}
}

func utc(day, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 30}, tod)

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("noon")
	assert.Error(t, err)
}

func TestTimeOfDayNextIsStrictlyAfter(t *testing.T) {
	noon := TimeOfDay{Hour: 12}
	assert.Equal(t, utc(1, 12), noon.next(utc(1, 6)))
	assert.Equal(t, utc(2, 12), noon.next(utc(1, 12)))
	assert.Equal(t, utc(2, 12), noon.next(utc(1, 13)))
}

func TestNewRejectsInvalidTimes(t *testing.T) {
	rec := newRecorder(utc(1, 0))
	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	cfg := DefaultConfig()
	cfg.SyncTimes = []string{"12:00", "bogus"}

	_, err := New(runner, nil, rec.clock, testutil.NopLogger(), cfg)
	assert.Error(t, err)
}

func TestDisabledSchedulerHasNoJobs(t *testing.T) {
	rec := newRecorder(utc(1, 0))
	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	cfg := DefaultConfig()
	cfg.Enabled = false

	s, err := New(runner, nil, rec.clock, testutil.NopLogger(), cfg)
	require.NoError(t, err)
	assert.Empty(t, s.upcoming(utc(1, 0)))
}

func TestSchedulerFiresJobsInOrderAndPostsReports(t *testing.T) {
	rec := newRecorder(utc(1, 6))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.limit = 4
	rec.cancel = cancel

	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	s, err := New(runner, rec, rec.clock, testutil.NopLogger(), DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))

	assert.Equal(t, []event{
		{job: "sync", at: utc(1, 12)},
		{job: "inactivity", at: utc(1, 14)},
		{job: "sync", at: utc(2, 0)},
		{job: "sync", at: utc(2, 12)},
	}, rec.events)
	assert.Equal(t, []string{
		"Clan Sync Report: sync report",
		"Inactivity Report: inactivity report",
		"Clan Sync Report: sync report",
	}, rec.posts, "the run that cancelled the scheduler is not posted")
}

func TestSchedulerRunsJobsDueAtTheSameTime(t *testing.T) {
	rec := newRecorder(utc(1, 6))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.limit = 2
	rec.cancel = cancel

	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	cfg := Config{Enabled: true, SyncTimes: []string{"09:00"}, InactivityTimes: []string{"09:00"}}
	s, err := New(runner, nil, rec.clock, testutil.NopLogger(), cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []event{
		{job: "sync", at: utc(1, 9)},
		{job: "inactivity", at: utc(1, 9)},
	}, rec.events)
}

func TestSchedulerKeepsGoingAfterFailedRun(t *testing.T) {
	rec := newRecorder(utc(1, 6))
	rec.syncErr = errors.New("boom")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.limit = 2
	rec.cancel = cancel

	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	cfg := Config{Enabled: true, SyncTimes: []string{"08:00"}}
	s, err := New(runner, rec, rec.clock, testutil.NopLogger(), cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	assert.Len(t, rec.events, 2)
	assert.Empty(t, rec.posts)
}

func TestSchedulerWithoutJobsWaitsForCancel(t *testing.T) {
	rec := newRecorder(utc(1, 6))
	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	s, err := New(runner, nil, rec.clock, testutil.NopLogger(), Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunnerRejectsConcurrentRuns(t *testing.T) {
	rec := newRecorder(utc(1, 6))
	rec.block = make(chan struct{})
	rec.started = make(chan struct{}, 1)
	runner := NewRunner(rec, inactivityRecorder{rec}, testutil.NopLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := runner.Sync(ctx, clansync.Options{})
		assert.NoError(t, err)
	}()
	<-rec.started
	assert.Equal(t, "sync", runner.Running())

	_, err := runner.Sync(ctx, clansync.Options{DryRun: true})
	assert.ErrorIs(t, err, model.ErrRunInProgress)
	_, err = runner.Inactivity(ctx)
	assert.ErrorIs(t, err, model.ErrRunInProgress)
	_, err = runner.Sync(ctx, clansync.Options{DryRun: true, Force: true})
	assert.ErrorIs(t, err, model.ErrForceDryRun)

	close(rec.block)
	wg.Wait()
	assert.Equal(t, "", runner.Running())

	rec.block = nil
	rec.started = nil
	_, err = runner.Inactivity(ctx)
	assert.NoError(t, err)
}
