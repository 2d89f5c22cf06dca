// Package storagetest holds the behavioural test suite every storage backend must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// Suite exercises a storage.Storage implementation.
// Backends embed it and set NewStorage before the suite runs.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	Store storage.Storage
	Ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Store = s.NewStorage()
	s.Ctx = context.Background()
}

var joined = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (s *Suite) saveMember(id string, rank model.RankID, status model.MemberStatus) *model.Member {
	m := &model.Member{
		ID:         model.MemberID(id),
		DateJoined: joined,
		RankID:     rank,
		Status:     status,
	}
	s.Require().NoError(s.Store.SaveMember(s.Ctx, m))
	return m
}

func (s *Suite) primaryCount(id model.MemberID) int {
	aliases, err := s.Store.ListAliasesForMember(s.Ctx, id)
	s.Require().NoError(err)
	count := 0
	for _, a := range aliases {
		if a.IsPrimary {
			count++
		}
	}
	return count
}

// Rank tests

func (s *Suite) TestCreateRankAssignsIDs() {
	r1 := &model.Rank{Name: "Sapphire", Type: model.RankTypeStandard}
	r2 := &model.Rank{Name: "Emerald", Type: model.RankTypeStandard}
	s.Require().NoError(s.Store.CreateRank(s.Ctx, r1))
	s.Require().NoError(s.Store.CreateRank(s.Ctx, r2))

	s.NotZero(r1.ID)
	s.NotZero(r2.ID)
	s.NotEqual(r1.ID, r2.ID)

	ranks, err := s.Store.ListRanks(s.Ctx)
	s.Require().NoError(err)
	s.Len(ranks, 2)
}

func (s *Suite) TestCreateRankRejectsDuplicateName() {
	s.Require().NoError(s.Store.CreateRank(s.Ctx, &model.Rank{Name: "Deputy Owner"}))
	err := s.Store.CreateRank(s.Ctx, &model.Rank{Name: "deputy_owner"})
	s.ErrorIs(err, model.ErrRankExists)
}

// Member tests

func (s *Suite) TestSaveAndGetMember() {
	s.saveMember("m1", 3, model.StatusActive)

	m, err := s.Store.GetMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(model.RankID(3), m.RankID)
	s.Equal(model.StatusActive, m.Status)
	s.True(m.DateJoined.Equal(joined))
}

func (s *Suite) TestGetMemberNotFound() {
	_, err := s.Store.GetMember(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrMemberNotFound)
}

func (s *Suite) TestSaveMemberUpdatesExisting() {
	m := s.saveMember("m1", 1, model.StatusActive)
	m.RankID = 2
	s.Require().NoError(s.Store.SaveMember(s.Ctx, m))

	members, err := s.Store.ListMembers(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal(model.RankID(2), members[0].RankID)
}

func (s *Suite) TestSetMembersStatus() {
	s.saveMember("m1", 1, model.StatusActive)
	s.saveMember("m2", 1, model.StatusActive)
	s.saveMember("m3", 1, model.StatusActive)

	err := s.Store.SetMembersStatus(s.Ctx, []model.MemberID{"m1", "m3"}, model.StatusInactive)
	s.Require().NoError(err)

	for id, want := range map[model.MemberID]model.MemberStatus{
		"m1": model.StatusInactive,
		"m2": model.StatusActive,
		"m3": model.StatusInactive,
	} {
		m, err := s.Store.GetMember(s.Ctx, id)
		s.Require().NoError(err)
		s.Equal(want, m.Status, "member %s", id)
	}
}

// Alias tests

func (s *Suite) TestSaveAliasKeepsSinglePrimary() {
	s.saveMember("m1", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Old Name", MemberID: "m1", IsPrimary: true}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "New Name", MemberID: "m1", IsPrimary: true}))

	s.Equal(1, s.primaryCount("m1"))
	aliases, err := s.Store.ListAliasesForMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Len(aliases, 2)
	for _, a := range aliases {
		s.Equal(a.RSN == "New Name", a.IsPrimary, "alias %s", a.RSN)
	}
}

func (s *Suite) TestSaveAliasUpsertsExistingRow() {
	s.saveMember("m1", 1, model.StatusActive)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Main", MemberID: "m1", CreatedAt: created}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Main", MemberID: "m1", IsPrimary: true, CreatedAt: created.AddDate(0, 1, 0)}))

	aliases, err := s.Store.ListAliasesForMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Require().Len(aliases, 1)
	s.True(aliases[0].IsPrimary)
	s.True(created.Equal(aliases[0].CreatedAt), "created at %s", aliases[0].CreatedAt)
}

func (s *Suite) TestRenameAliasInPlace() {
	s.saveMember("m1", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "iron man", MemberID: "m1", IsPrimary: true}))

	s.Require().NoError(s.Store.RenameAlias(s.Ctx, "m1", "iron man", "Iron Man"))

	aliases, err := s.Store.ListAliasesForMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Require().Len(aliases, 1)
	s.Equal("Iron Man", aliases[0].RSN)
	s.True(aliases[0].IsPrimary)
}

func (s *Suite) TestRenameAliasNotFound() {
	err := s.Store.RenameAlias(s.Ctx, "m1", "nobody", "somebody")
	s.ErrorIs(err, model.ErrAliasNotFound)
}

func (s *Suite) TestSetPrimaryAliasSwapsFlag() {
	s.saveMember("m1", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Main", MemberID: "m1", IsPrimary: true}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Alt", MemberID: "m1"}))

	s.Require().NoError(s.Store.SetPrimaryAlias(s.Ctx, "m1", "Alt"))

	aliases, err := s.Store.ListAliasesForMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Len(aliases, 2)
	for _, a := range aliases {
		s.Equal(a.RSN == "Alt", a.IsPrimary, "alias %s", a.RSN)
	}
}

func (s *Suite) TestSetPrimaryAliasEmptyDemotesAll() {
	s.saveMember("m1", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Main", MemberID: "m1", IsPrimary: true}))

	s.Require().NoError(s.Store.SetPrimaryAlias(s.Ctx, "m1", ""))
	s.Equal(0, s.primaryCount("m1"))
}

func (s *Suite) TestSetPrimaryAliasDoesNotTouchOtherMembers() {
	s.saveMember("m1", 1, model.StatusActive)
	s.saveMember("m2", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "One", MemberID: "m1", IsPrimary: true}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Two", MemberID: "m2", IsPrimary: true}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "One Alt", MemberID: "m1"}))

	s.Require().NoError(s.Store.SetPrimaryAlias(s.Ctx, "m1", "One Alt"))

	s.Equal(1, s.primaryCount("m1"))
	s.Equal(1, s.primaryCount("m2"))
}

func (s *Suite) TestSetPrimaryAliasUnknownRSN() {
	s.saveMember("m1", 1, model.StatusActive)
	err := s.Store.SetPrimaryAlias(s.Ctx, "m1", "ghost")
	s.ErrorIs(err, model.ErrAliasNotFound)
}

func (s *Suite) TestListAliases() {
	s.saveMember("m1", 1, model.StatusActive)
	s.saveMember("m2", 1, model.StatusActive)
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "One", MemberID: "m1", IsPrimary: true}))
	s.Require().NoError(s.Store.SaveAlias(s.Ctx, model.Alias{RSN: "Two", MemberID: "m2", IsPrimary: true}))

	aliases, err := s.Store.ListAliases(s.Ctx)
	s.Require().NoError(err)
	s.Len(aliases, 2)
}

// Rank history tests

func (s *Suite) TestRankHistoryNewestFirstWithLimit() {
	s.saveMember("m1", 1, model.StatusActive)
	prev := model.RankID(1)
	actor := model.MemberID("staff")
	s.Require().NoError(s.Store.AppendRankHistory(s.Ctx,
		model.RankHistoryEntry{MemberID: "m1", NewRankID: 1, CreatedAt: joined},
		model.RankHistoryEntry{MemberID: "m1", PreviousRankID: &prev, NewRankID: 2, EnactedBy: &actor, CreatedAt: joined.Add(time.Hour)},
	))
	s.Require().NoError(s.Store.AppendRankHistory(s.Ctx,
		model.RankHistoryEntry{MemberID: "m1", PreviousRankID: &prev, NewRankID: 3, CreatedAt: joined.Add(2 * time.Hour)},
	))

	all, err := s.Store.ListRankHistory(s.Ctx, "m1", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(model.RankID(3), all[0].NewRankID)
	s.Nil(all[2].PreviousRankID)
	s.Require().NotNil(all[1].EnactedBy)
	s.Equal(actor, *all[1].EnactedBy)

	limited, err := s.Store.ListRankHistory(s.Ctx, "m1", 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}

// Snapshot tests

func (s *Suite) TestSaveSnapshotsUpdatesLatestXP() {
	s.saveMember("m1", 1, model.StatusActive)
	raw := json.RawMessage(`{"id":1}`)
	s.Require().NoError(s.Store.SaveSnapshots(s.Ctx,
		model.ActivitySnapshot{MemberID: "m1", TotalXP: 1000, TotalLevel: 500, RawPayload: raw, SnapshotDate: joined},
	))
	s.Require().NoError(s.Store.SaveSnapshots(s.Ctx,
		model.ActivitySnapshot{MemberID: "m1", TotalXP: 2500, TotalLevel: 510, ComputedMetrics: map[string]float64{"ehp": 1.5}, SnapshotDate: joined.Add(time.Hour)},
	))

	m, err := s.Store.GetMember(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(int64(2500), m.LatestXP)

	snaps, err := s.Store.ListSnapshots(s.Ctx, "m1", 5)
	s.Require().NoError(err)
	s.Require().Len(snaps, 2)
	s.Equal(int64(2500), snaps[0].TotalXP)
	s.Equal(510, snaps[0].TotalLevel)
	s.InDelta(1.5, snaps[0].ComputedMetrics["ehp"], 0.0001)
}

// Point tests

func (s *Suite) TestPointsBalance() {
	s.saveMember("m1", 1, model.StatusActive)
	s.Require().NoError(s.Store.AddPointTransactions(s.Ctx,
		model.PointTransaction{MemberID: "m1", Points: 10, Reason: "event", CreatedAt: joined},
		model.PointTransaction{MemberID: "m1", Points: -3, Reason: "correction", CreatedAt: joined},
	))

	balance, err := s.Store.GetPointsBalance(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(7, balance)

	empty, err := s.Store.GetPointsBalance(s.Ctx, "m2")
	s.Require().NoError(err)
	s.Equal(0, empty)
}

func (s *Suite) TestListPointsBalances() {
	s.saveMember("m1", 1, model.StatusActive)
	s.saveMember("m2", 1, model.StatusActive)
	s.saveMember("m3", 1, model.StatusActive)
	s.Require().NoError(s.Store.AddPointTransactions(s.Ctx,
		model.PointTransaction{MemberID: "m1", Points: 10, CreatedAt: joined},
		model.PointTransaction{MemberID: "m2", Points: 4, CreatedAt: joined},
		model.PointTransaction{MemberID: "m1", Points: -2, CreatedAt: joined},
	))

	balances, err := s.Store.ListPointsBalances(s.Ctx)
	s.Require().NoError(err)
	s.Equal(map[model.MemberID]int{"m1": 8, "m2": 4}, balances)
}

// Exemption tests

func (s *Suite) TestAddAndListExemptions() {
	s.saveMember("m1", 1, model.StatusActive)
	s.saveMember("staff", 1, model.StatusActive)
	granter := model.MemberID("staff")

	first := model.Exemption{MemberID: "m1", Reason: "holiday", GrantedBy: &granter, ExpiresAt: joined.AddDate(0, 3, 0), CreatedAt: joined}
	second := model.Exemption{MemberID: "m1", Reason: "exams", ExpiresAt: joined.AddDate(0, 9, 0), CreatedAt: joined.AddDate(0, 6, 0)}
	s.Require().NoError(s.Store.AddExemption(s.Ctx, first))
	s.Require().NoError(s.Store.AddExemption(s.Ctx, second))

	exemptions, err := s.Store.ListExemptions(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(exemptions, 2)
	s.Equal("holiday", exemptions[0].Reason)
	s.Require().NotNil(exemptions[0].GrantedBy)
	s.Equal(granter, *exemptions[0].GrantedBy)
	s.True(exemptions[0].ExpiresAt.Equal(first.ExpiresAt))
	s.Equal("exams", exemptions[1].Reason)
	s.Nil(exemptions[1].GrantedBy)
}

func (s *Suite) TestAddExemptionUnknownMember() {
	err := s.Store.AddExemption(s.Ctx, model.Exemption{MemberID: "ghost", ExpiresAt: joined})
	s.ErrorIs(err, model.ErrMemberNotFound)
}

// Group snapshot tests

func (s *Suite) TestGroupSnapshotsNewestFirstWithLimit() {
	for i := 0; i < 3; i++ {
		payload, err := json.Marshal(map[string]int{"run": i})
		s.Require().NoError(err)
		s.Require().NoError(s.Store.SaveGroupSnapshot(s.Ctx, model.GroupSnapshot{
			Payload:   payload,
			CreatedAt: joined.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err := s.Store.ListGroupSnapshots(s.Ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(latest, 2)
	s.JSONEq(`{"run":2}`, string(latest[0].Payload))
	s.JSONEq(`{"run":1}`, string(latest[1].Payload))

	all, err := s.Store.ListGroupSnapshots(s.Ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
}
