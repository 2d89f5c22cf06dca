// Package roster implements the staff-facing member administration commands.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// MemberInfo is the profile of one member
type MemberInfo struct {
	Member     model.Member
	PrimaryRSN string
	RankName   string
	PastRSNs   []string
	Points     int
	DaysInClan int
}

// HistoryEntry is a rank history row with names resolved
type HistoryEntry struct {
	PreviousRank string // empty for a first assignment
	NewRank      string
	EnactedBy    string // empty when made by the sync
	CreatedAt    time.Time
}

// RankChange is the outcome of a single rank update
type RankChange struct {
	RSN       string
	OldRank   string
	NewRank   string
	Unchanged bool
}

// BulkStatus is the per-RSN outcome of a bulk command
type BulkStatus string

const (
	BulkUpdated   BulkStatus = "updated"
	BulkUnchanged BulkStatus = "unchanged"
	BulkNotFound  BulkStatus = "not_found"
	BulkFailed    BulkStatus = "failed"
)

// BulkResult is the outcome for one RSN of a bulk command
type BulkResult struct {
	RSN    string     `json:"rsn"`
	Status BulkStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// LeaderboardPageSize is how many members one leaderboard page lists
const LeaderboardPageSize = 50

// LeaderboardEntry is one member's standing on the points leaderboard
type LeaderboardEntry struct {
	Position int    `json:"position"`
	RSN      string `json:"rsn"`
	Points   int    `json:"points"`
}

// LeaderboardPage is one page of the points leaderboard
type LeaderboardPage struct {
	Entries    []LeaderboardEntry `json:"entries"`
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
	Total      int                `json:"total"`
}

// Service handles member lookups, manual rank changes and event points
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new roster Service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// lookup resolves an RSN against every alias, primary or not. If several
// members hold the name, the primary holder wins, then the newest row.
func (s *Service) lookup(ctx context.Context, rsn string) (*model.Member, error) {
	key := model.Normalize(rsn)
	if key == "" {
		return nil, model.ErrEmptyRSN
	}
	aliases, err := s.storage.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	var best *model.Alias
	for i := range aliases {
		a := &aliases[i]
		if a.Normalized() != key {
			continue
		}
		if best == nil || betterMatch(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrRSNNotFound, rsn)
	}
	return s.storage.GetMember(ctx, best.MemberID)
}

func betterMatch(a, b *model.Alias) bool {
	if a.IsPrimary != b.IsPrimary {
		return a.IsPrimary
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.MemberID < b.MemberID
}

// actorID resolves the staff member enacting a change. An unknown or empty
// actor is recorded as unattributed.
func (s *Service) actorID(ctx context.Context, actor string) *model.MemberID {
	if actor == "" {
		return nil
	}
	m, err := s.lookup(ctx, actor)
	if err != nil {
		s.logger.Warn("could not resolve actor", slog.String("actor", actor), slog.Any("error", err))
		return nil
	}
	return &m.ID
}

func (s *Service) primaryRSN(ctx context.Context, id model.MemberID) (string, []string, error) {
	aliases, err := s.storage.ListAliasesForMember(ctx, id)
	if err != nil {
		return "", nil, err
	}
	primary := ""
	var past []string
	for _, a := range aliases {
		if a.IsPrimary {
			primary = a.RSN
		} else {
			past = append(past, a.RSN)
		}
	}
	return primary, past, nil
}

func (s *Service) ranks(ctx context.Context) (*model.RankLookup, error) {
	ranks, err := s.storage.ListRanks(ctx)
	if err != nil {
		return nil, err
	}
	return model.NewRankLookup(ranks), nil
}

// MemberInfo returns the profile of the member owning the RSN
func (s *Service) MemberInfo(ctx context.Context, rsn string) (*MemberInfo, error) {
	m, err := s.lookup(ctx, rsn)
	if err != nil {
		return nil, err
	}
	ranks, err := s.ranks(ctx)
	if err != nil {
		return nil, err
	}
	primary, past, err := s.primaryRSN(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	points, err := s.storage.GetPointsBalance(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	return &MemberInfo{
		Member:     *m,
		PrimaryRSN: primary,
		RankName:   ranks.Name(m.RankID),
		PastRSNs:   past,
		Points:     points,
		DaysInClan: m.DaysInClan(s.clock.Now()),
	}, nil
}

// RankHistory returns up to limit rank changes of the member, newest first.
// A non-positive limit returns everything.
func (s *Service) RankHistory(ctx context.Context, rsn string, limit int) ([]HistoryEntry, error) {
	m, err := s.lookup(ctx, rsn)
	if err != nil {
		return nil, err
	}
	ranks, err := s.ranks(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.storage.ListRankHistory(ctx, m.ID, limit)
	if err != nil {
		return nil, err
	}

	actors := make(map[model.MemberID]string)
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e := HistoryEntry{
			NewRank:   ranks.Name(row.NewRankID),
			CreatedAt: row.CreatedAt,
		}
		if row.PreviousRankID != nil {
			e.PreviousRank = ranks.Name(*row.PreviousRankID)
		}
		if row.EnactedBy != nil {
			name, ok := actors[*row.EnactedBy]
			if !ok {
				name, _, err = s.primaryRSN(ctx, *row.EnactedBy)
				if err != nil {
					return nil, err
				}
				if name == "" {
					name = string(*row.EnactedBy)
				}
				actors[*row.EnactedBy] = name
			}
			e.EnactedBy = name
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RankUp sets the member's rank and records who did it. Setting the current
// rank again writes nothing.
func (s *Service) RankUp(ctx context.Context, rsn, rankName, actor string) (*RankChange, error) {
	ranks, err := s.ranks(ctx)
	if err != nil {
		return nil, err
	}
	rankID, ok := ranks.IDForLabel(rankName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrRankNotFound, rankName)
	}
	return s.setRank(ctx, ranks, rsn, rankID, s.actorID(ctx, actor))
}

func (s *Service) setRank(ctx context.Context, ranks *model.RankLookup, rsn string, rankID model.RankID, actor *model.MemberID) (*RankChange, error) {
	m, err := s.lookup(ctx, rsn)
	if err != nil {
		return nil, err
	}
	change := &RankChange{
		RSN:     rsn,
		OldRank: ranks.Name(m.RankID),
		NewRank: ranks.Name(rankID),
	}
	if m.RankID == rankID {
		change.Unchanged = true
		return change, nil
	}

	prev := m.RankID
	m.RankID = rankID
	if err := s.storage.SaveMember(ctx, m); err != nil {
		return nil, err
	}
	err = s.storage.AppendRankHistory(ctx, model.RankHistoryEntry{
		MemberID:       m.ID,
		PreviousRankID: &prev,
		NewRankID:      rankID,
		EnactedBy:      actor,
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("rank updated",
		slog.String("rsn", rsn),
		slog.String("from", change.OldRank),
		slog.String("to", change.NewRank),
	)
	return change, nil
}

// BulkRankUp sets the same rank on every RSN. An unknown rank fails the
// whole command before anything is written.
func (s *Service) BulkRankUp(ctx context.Context, rankName string, rsns []string, actor string) ([]BulkResult, error) {
	ranks, err := s.ranks(ctx)
	if err != nil {
		return nil, err
	}
	rankID, ok := ranks.IDForLabel(rankName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrRankNotFound, rankName)
	}
	actorID := s.actorID(ctx, actor)

	results := make([]BulkResult, 0, len(rsns))
	for _, rsn := range rsns {
		change, err := s.setRank(ctx, ranks, rsn, rankID, actorID)
		results = append(results, bulkResult(rsn, err, change != nil && change.Unchanged))
	}
	return results, nil
}

// AddPoints grants (or, when negative, removes) event points and returns the new balance
func (s *Service) AddPoints(ctx context.Context, rsn string, points int, reason, actor string) (int, error) {
	if points == 0 {
		return 0, model.ErrInvalidPoints
	}
	m, err := s.lookup(ctx, rsn)
	if err != nil {
		return 0, err
	}
	err = s.storage.AddPointTransactions(ctx, model.PointTransaction{
		MemberID:  m.ID,
		Points:    points,
		Reason:    reason,
		EnactedBy: s.actorID(ctx, actor),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, err
	}
	return s.storage.GetPointsBalance(ctx, m.ID)
}

// BulkAddPoints grants the same points to every RSN
func (s *Service) BulkAddPoints(ctx context.Context, rsns []string, points int, reason, actor string) ([]BulkResult, error) {
	if points == 0 {
		return nil, model.ErrInvalidPoints
	}
	actorID := s.actorID(ctx, actor)
	now := s.clock.Now()

	results := make([]BulkResult, 0, len(rsns))
	for _, rsn := range rsns {
		m, err := s.lookup(ctx, rsn)
		if err == nil {
			err = s.storage.AddPointTransactions(ctx, model.PointTransaction{
				MemberID:  m.ID,
				Points:    points,
				Reason:    reason,
				EnactedBy: actorID,
				CreatedAt: now,
			})
		}
		results = append(results, bulkResult(rsn, err, false))
	}
	return results, nil
}

// AddExemption shields the member from inactivity checks for the next
// ExemptionMonths months. A member may hold one active exemption at a time.
func (s *Service) AddExemption(ctx context.Context, rsn, reason, actor string) (*model.Exemption, error) {
	m, err := s.lookup(ctx, rsn)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	existing, err := s.storage.ListExemptions(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.MemberID == m.ID && e.ActiveAt(now) {
			return nil, fmt.Errorf("%w: %s is exempt until %s", model.ErrAlreadyExempt, rsn, e.ExpiresAt.Format(time.DateOnly))
		}
	}

	exemption := model.Exemption{
		MemberID:  m.ID,
		Reason:    reason,
		GrantedBy: s.actorID(ctx, actor),
		ExpiresAt: now.AddDate(0, model.ExemptionMonths, 0),
		CreatedAt: now,
	}
	if err := s.storage.AddExemption(ctx, exemption); err != nil {
		return nil, err
	}
	s.logger.Info("exemption granted",
		slog.String("rsn", rsn),
		slog.Time("expires_at", exemption.ExpiresAt),
	)
	return &exemption, nil
}

// PointsLeaderboard ranks active members with a positive balance by points,
// highest first. Pages start at 1; a page past the end is empty.
func (s *Service) PointsLeaderboard(ctx context.Context, page int) (*LeaderboardPage, error) {
	if page < 1 {
		page = 1
	}
	members, err := s.storage.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := s.storage.ListPointsBalances(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.storage.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	primaries := make(map[model.MemberID]string)
	for _, a := range aliases {
		if a.IsPrimary {
			primaries[a.MemberID] = a.RSN
		}
	}

	var entries []LeaderboardEntry
	for _, m := range members {
		rsn, ok := primaries[m.ID]
		if !m.IsActive() || !ok || balances[m.ID] <= 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{RSN: rsn, Points: balances[m.ID]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return model.Normalize(entries[i].RSN) < model.Normalize(entries[j].RSN)
	})
	for i := range entries {
		entries[i].Position = i + 1
	}

	result := &LeaderboardPage{
		Page:       page,
		Total:      len(entries),
		TotalPages: (len(entries) + LeaderboardPageSize - 1) / LeaderboardPageSize,
		Entries:    []LeaderboardEntry{},
	}
	start := (page - 1) * LeaderboardPageSize
	if start < len(entries) {
		end := min(start+LeaderboardPageSize, len(entries))
		result.Entries = entries[start:end]
	}
	return result, nil
}

func bulkResult(rsn string, err error, unchanged bool) BulkResult {
	switch {
	case errors.Is(err, model.ErrRSNNotFound), errors.Is(err, model.ErrEmptyRSN):
		return BulkResult{RSN: rsn, Status: BulkNotFound}
	case err != nil:
		return BulkResult{RSN: rsn, Status: BulkFailed, Error: err.Error()}
	case unchanged:
		return BulkResult{RSN: rsn, Status: BulkUnchanged}
	default:
		return BulkResult{RSN: rsn, Status: BulkUpdated}
	}
}
