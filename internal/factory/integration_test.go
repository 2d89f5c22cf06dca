package factory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/testutil"
	"github.com/mcoot/clanadmin/internal/wom/womtest"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	app, err := NewTestApp(testutil.NopLogger(), nil)
	s.Require().NoError(err)
	s.app = app
	s.ctx = context.Background()

	for _, name := range []string{"Sapphire", "Emerald", "Ruby"} {
		s.Require().NoError(s.app.Storage.CreateRank(s.ctx, &model.Rank{Name: name, Type: model.RankTypeStandard}))
	}

	now := s.app.MockClock.Now()
	s.app.WOMServer.SetMembers(
		womtest.Member{ID: 1, Name: "Alice", Role: "sapphire", Exp: womtest.Int64(1000)},
		womtest.Member{ID: 2, Name: "Bob", Role: "emerald", Exp: womtest.Int64(2000)},
	)
	s.app.WOMServer.SetLatestSnapshot("Alice", &womtest.Snapshot{CreatedAt: now, XP: 1000, Level: 900})
	s.app.WOMServer.SetLatestSnapshot("Bob", &womtest.Snapshot{CreatedAt: now, XP: 2000, Level: 1300})
}

func (s *IntegrationSuite) TearDownTest() {
	s.app.Close()
}

func (s *IntegrationSuite) sync(opts clansync.Options) *clansync.Result {
	result, err := s.app.Runner.Sync(s.ctx, opts)
	s.Require().NoError(err)
	s.Require().Equal(clansync.OutcomeCompleted, result.Outcome, result.Report)
	return result
}

// Test: a dry run describes the joins without touching the store
func (s *IntegrationSuite) TestDryRunWritesNothing() {
	result := s.sync(clansync.Options{DryRun: true})
	s.Equal(2, result.Counts.New)

	members, err := s.app.Storage.ListMembers(s.ctx)
	s.Require().NoError(err)
	s.Empty(members)
	s.Zero(s.app.WOMServer.Requests("/players"))
}

// Test: members joined by a live sync can be managed and survive a rename
func (s *IntegrationSuite) TestSyncThenManageMembers() {
	first := s.sync(clansync.Options{})
	s.Equal(2, first.Counts.New)

	info, err := s.app.RosterService.MemberInfo(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("Alice", info.PrimaryRSN)
	s.Equal("Sapphire", info.RankName)
	s.Equal(int64(1000), info.Member.LatestXP)

	// Alice renames on the external side
	s.app.MockClock.Advance(12 * time.Hour)
	s.app.WOMServer.SetMembers(
		womtest.Member{ID: 1, Name: "Alicia", Role: "sapphire", Exp: womtest.Int64(1000)},
		womtest.Member{ID: 2, Name: "Bob", Role: "emerald", Exp: womtest.Int64(2000)},
	)
	s.app.WOMServer.SetRenames(womtest.Rename{OldName: "Alice", NewName: "Alicia", CreatedAt: s.app.MockClock.Now()})

	second := s.sync(clansync.Options{})
	s.Equal(1, second.Renames)
	s.Zero(second.Counts.New)
	s.Zero(second.Counts.Departed)

	info, err = s.app.RosterService.MemberInfo(s.ctx, "Alice")
	s.Require().NoError(err)
	s.Equal("Alicia", info.PrimaryRSN)
	s.Equal([]string{"Alice"}, info.PastRSNs)

	// Staff promote her, attributed to Bob
	change, err := s.app.RosterService.RankUp(s.ctx, "alicia", "emerald", "Bob")
	s.Require().NoError(err)
	s.Equal("Sapphire", change.OldRank)
	s.Equal("Emerald", change.NewRank)

	history, err := s.app.RosterService.RankHistory(s.ctx, "Alicia", 0)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("Emerald", history[0].NewRank)
	s.Equal("Bob", history[0].EnactedBy)
	s.Equal("", history[1].PreviousRank)

	balance, err := s.app.RosterService.AddPoints(s.ctx, "alicia", 15, "bingo", "Bob")
	s.Require().NoError(err)
	s.Equal(15, balance)

	// The next sync sees Emerald locally but Sapphire externally
	third := s.sync(clansync.Options{})
	s.Equal(1, third.Counts.Mismatched)
}

// Test: departed members are deactivated and come back on return
func (s *IntegrationSuite) TestDepartureAndReturn() {
	s.sync(clansync.Options{})

	s.app.WOMServer.SetMembers(womtest.Member{ID: 2, Name: "Bob", Role: "emerald", Exp: womtest.Int64(2000)})
	left := s.sync(clansync.Options{})
	s.Equal(1, left.Counts.Departed)

	info, err := s.app.RosterService.MemberInfo(s.ctx, "Alice")
	s.Require().NoError(err)
	s.Equal(model.StatusInactive, info.Member.Status)

	s.app.WOMServer.SetMembers(
		womtest.Member{ID: 1, Name: "Alice", Role: "ruby", Exp: womtest.Int64(1000)},
		womtest.Member{ID: 2, Name: "Bob", Role: "emerald", Exp: womtest.Int64(2000)},
	)
	back := s.sync(clansync.Options{})
	s.Equal(1, back.Counts.Returning)

	info, err = s.app.RosterService.MemberInfo(s.ctx, "Alice")
	s.Require().NoError(err)
	s.Equal(model.StatusActive, info.Member.Status)
	s.Equal("Ruby", info.RankName)
}

// Test: members with a single snapshot and no external history are reported
func (s *IntegrationSuite) TestInactivityAfterSync() {
	s.sync(clansync.Options{})
	before := s.app.WOMServer.Requests("/players/")

	result, err := s.app.Runner.Inactivity(s.ctx)
	s.Require().NoError(err)

	s.Equal(2, result.Checked)
	s.Equal(2, result.Flagged)
	s.Len(result.Inactive, 2)
	s.Contains(result.Report, "Eligible for Removal (2)")
	s.Equal(2, s.app.WOMServer.Requests("/players/")-before, "one history page per flagged member")
}

// Test: the runner refuses force with dry run before contacting the roster service
func (s *IntegrationSuite) TestForceDryRunRejected() {
	_, err := s.app.Runner.Sync(s.ctx, clansync.Options{DryRun: true, Force: true})
	s.ErrorIs(err, model.ErrForceDryRun)
	s.Zero(s.app.WOMServer.TotalRequests())
}
