package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/clansync"
	"github.com/mcoot/clanadmin/internal/services/inactivity"
	"github.com/mcoot/clanadmin/internal/services/roster"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Health is the health check response
type Health struct {
	Status  string `json:"status"`
	Running string `json:"running,omitempty"`
}

// SyncResult is the outcome of a sync run
type SyncResult struct {
	DryRun     bool            `json:"dry_run"`
	Force      bool            `json:"force"`
	Outcome    string          `json:"outcome"`
	Counts     clansync.Counts `json:"counts"`
	Renames    int             `json:"renames"`
	StepErrors int             `json:"step_errors"`
	Promotions []string        `json:"promotions"`
	Report     string          `json:"report"`
}

// SyncResultFromResult converts a clansync.Result
func SyncResultFromResult(r *clansync.Result) SyncResult {
	promotions := r.Promotions
	if promotions == nil {
		promotions = []string{}
	}
	return SyncResult{
		DryRun:     r.Options.DryRun,
		Force:      r.Options.Force,
		Outcome:    string(r.Outcome),
		Counts:     r.Counts,
		Renames:    r.Renames,
		StepErrors: r.StepErrors,
		Promotions: promotions,
		Report:     r.Report,
	}
}

// InactivityResult is the outcome of an inactivity check
type InactivityResult struct {
	Checked  int                  `json:"checked"`
	Flagged  int                  `json:"flagged"`
	Inactive []inactivity.Finding `json:"inactive"`
	AtRisk   []inactivity.Finding `json:"at_risk"`
	Exempt   []string             `json:"exempt"`
	Report   string               `json:"report"`
}

// InactivityResultFromResult converts an inactivity.Result
func InactivityResultFromResult(r *inactivity.Result) InactivityResult {
	return InactivityResult{
		Checked:  r.Checked,
		Flagged:  r.Flagged,
		Inactive: nonNil(r.Inactive),
		AtRisk:   nonNil(r.AtRisk),
		Exempt:   nonNil(r.Exempt),
		Report:   r.Report,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// Member is a member profile
type Member struct {
	ID         string    `json:"id"`
	RSN        string    `json:"rsn"`
	Rank       string    `json:"rank"`
	Status     string    `json:"status"`
	DateJoined time.Time `json:"date_joined"`
	DaysInClan int       `json:"days_in_clan"`
	PastRSNs   []string  `json:"past_rsns"`
	Points     int       `json:"points"`
}

// MemberFromInfo converts a roster.MemberInfo
func MemberFromInfo(info *roster.MemberInfo) Member {
	return Member{
		ID:         string(info.Member.ID),
		RSN:        info.PrimaryRSN,
		Rank:       info.RankName,
		Status:     string(info.Member.Status),
		DateJoined: info.Member.DateJoined,
		DaysInClan: info.DaysInClan,
		PastRSNs:   nonNil(info.PastRSNs),
		Points:     info.Points,
	}
}

// RankHistoryEntry is one rank change
type RankHistoryEntry struct {
	PreviousRank string    `json:"previous_rank,omitempty"`
	NewRank      string    `json:"new_rank"`
	EnactedBy    string    `json:"enacted_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RankHistory is a member's rank changes, newest first
type RankHistory struct {
	RSN     string             `json:"rsn"`
	Entries []RankHistoryEntry `json:"entries"`
}

// RankHistoryFromEntries converts roster history entries
func RankHistoryFromEntries(rsn string, entries []roster.HistoryEntry) RankHistory {
	h := RankHistory{RSN: rsn, Entries: make([]RankHistoryEntry, 0, len(entries))}
	for _, e := range entries {
		h.Entries = append(h.Entries, RankHistoryEntry{
			PreviousRank: e.PreviousRank,
			NewRank:      e.NewRank,
			EnactedBy:    e.EnactedBy,
			CreatedAt:    e.CreatedAt,
		})
	}
	return h
}

// RankChange is the outcome of setting a rank
type RankChange struct {
	RSN       string `json:"rsn"`
	OldRank   string `json:"old_rank"`
	NewRank   string `json:"new_rank"`
	Unchanged bool   `json:"unchanged"`
}

// RankChangeFromModel converts a roster.RankChange
func RankChangeFromModel(c *roster.RankChange) RankChange {
	return RankChange{
		RSN:       c.RSN,
		OldRank:   c.OldRank,
		NewRank:   c.NewRank,
		Unchanged: c.Unchanged,
	}
}

// Points is a member's balance after a grant
type Points struct {
	RSN     string `json:"rsn"`
	Balance int    `json:"balance"`
}

// BulkResults lists the per-RSN outcomes of a bulk command
type BulkResults struct {
	Results []roster.BulkResult `json:"results"`
}

// Exemption is a granted inactivity exemption
type Exemption struct {
	RSN       string    `json:"rsn"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExemptionFromModel converts a model.Exemption
func ExemptionFromModel(rsn string, e *model.Exemption) Exemption {
	return Exemption{RSN: rsn, Reason: e.Reason, ExpiresAt: e.ExpiresAt}
}

// Leaderboard is one page of the points leaderboard
type Leaderboard struct {
	Page       int                       `json:"page"`
	TotalPages int                       `json:"total_pages"`
	Total      int                       `json:"total"`
	Entries    []roster.LeaderboardEntry `json:"entries"`
}

// LeaderboardFromPage converts a roster.LeaderboardPage
func LeaderboardFromPage(p *roster.LeaderboardPage) Leaderboard {
	return Leaderboard{
		Page:       p.Page,
		TotalPages: p.TotalPages,
		Total:      p.Total,
		Entries:    nonNil(p.Entries),
	}
}
