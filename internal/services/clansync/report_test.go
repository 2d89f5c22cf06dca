package clansync

import (
	"errors"

	"github.com/sebdah/goldie/v2"

	"github.com/mcoot/clanadmin/internal/model"
)

func (s *ServiceSuite) assertGolden(name string, result *Result) {
	g := goldie.New(s.T(),
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(s.T(), name, []byte(result.Report))
}

// seedReportScenario builds a store and roster covering every classification:
// a rename that causes a mismatch, a returning member, a departure and a new
// member with an unknown rank.
func (s *ServiceSuite) seedReportScenario() {
	joined := runTime.AddDate(0, -3, 0)
	s.seed("m1", "Alice", 1, model.StatusActive, joined)
	s.seed("m2", "Bob", 2, model.StatusActive, joined)
	s.seed("m3", "Carol", 1, model.StatusInactive, joined)
	s.source.setRoster(
		entry("Alicia", "emerald"),
		entry("Carol", "sapphire"),
		entry("Dave", "Gnome Child"),
	)
	s.source.changes = []model.NameChange{{OldName: "Alice", NewName: "Alicia"}}
}

func (s *ServiceSuite) TestReportDryRun() {
	s.seedReportScenario()
	s.assertGolden("dry_run", s.run(Options{DryRun: true}))
}

func (s *ServiceSuite) TestReportLiveRun() {
	s.seedReportScenario()
	s.source.snapshots["Alicia"] = &model.PlayerSnapshot{TotalXP: 100}
	s.source.failures["Carol"] = model.ErrPlayerNotTracked

	s.assertGolden("live_run", s.run(Options{}))
}

func (s *ServiceSuite) TestReportHalted() {
	s.cfg.MismatchThreshold = 0
	s.rebuild()
	s.seedReportScenario()
	s.assertGolden("halted", s.run(Options{}))
}

func (s *ServiceSuite) TestReportCritical() {
	s.source.rosterErr = errors.New("wom returned 503")
	s.assertGolden("critical", s.run(Options{}))
}
