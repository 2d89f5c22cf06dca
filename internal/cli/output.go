package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case SyncResult:
		fmt.Fprintln(o.w, v.Report)
	case InactivityResult:
		fmt.Fprintln(o.w, v.Report)
	case Member:
		o.printMember(v)
	case RankHistory:
		o.printRankHistory(v)
	case RankChange:
		o.printRankChange(v)
	case Points:
		fmt.Fprintf(o.w, "%s now has %d points\n", v.RSN, v.Balance)
	case BulkResults:
		o.printBulkResults(v)
	case Exemption:
		fmt.Fprintf(o.w, "%s is exempt from inactivity checks until %s\n", v.RSN, v.ExpiresAt.Format("2006-01-02"))
	case Leaderboard:
		o.printLeaderboard(v)
	case HealthResult:
		o.printHealthResult(v)
	case TokenResult:
		o.printTokenResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// SyncResult response type (matches API)
type SyncResult struct {
	DryRun     bool           `json:"dry_run"`
	Force      bool           `json:"force"`
	Outcome    string         `json:"outcome"`
	Counts     map[string]int `json:"counts"`
	Renames    int            `json:"renames"`
	StepErrors int            `json:"step_errors"`
	Promotions []string       `json:"promotions"`
	Report     string         `json:"report"`
}

// Finding response type
type Finding struct {
	RSN          string `json:"rsn"`
	RankName     string `json:"rank"`
	DaysInactive int    `json:"days_inactive"`
	NoActivity   bool   `json:"no_activity"`
	Lookback     int    `json:"lookback_days"`
	LatestXP     int64  `json:"latest_xp"`
	Reason       string `json:"reason"`
}

// InactivityResult response type
type InactivityResult struct {
	Checked  int       `json:"checked"`
	Flagged  int       `json:"flagged"`
	Inactive []Finding `json:"inactive"`
	AtRisk   []Finding `json:"at_risk"`
	Exempt   []string  `json:"exempt"`
	Report   string    `json:"report"`
}

// Member response type
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

// RankHistoryEntry response type
type RankHistoryEntry struct {
	PreviousRank string    `json:"previous_rank,omitempty"`
	NewRank      string    `json:"new_rank"`
	EnactedBy    string    `json:"enacted_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RankHistory response type
type RankHistory struct {
	RSN     string             `json:"rsn"`
	Entries []RankHistoryEntry `json:"entries"`
}

// RankChange response type
type RankChange struct {
	RSN       string `json:"rsn"`
	OldRank   string `json:"old_rank"`
	NewRank   string `json:"new_rank"`
	Unchanged bool   `json:"unchanged"`
}

// Points response type
type Points struct {
	RSN     string `json:"rsn"`
	Balance int    `json:"balance"`
}

// BulkResult response type
type BulkResult struct {
	RSN    string `json:"rsn"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BulkResults response type
type BulkResults struct {
	Results []BulkResult `json:"results"`
}

// Exemption response type
type Exemption struct {
	RSN       string    `json:"rsn"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LeaderboardEntry response type
type LeaderboardEntry struct {
	Position int    `json:"position"`
	RSN      string `json:"rsn"`
	Points   int    `json:"points"`
}

// Leaderboard response type
type Leaderboard struct {
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
	Total      int                `json:"total"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Running string `json:"running,omitempty"`
}

// TokenResult is a generated staff token and the hash to configure
type TokenResult struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func (o *Output) printMember(m Member) {
	fmt.Fprintf(o.w, "Member: %s (%s)\n", m.RSN, m.ID)
	fmt.Fprintf(o.w, "Rank: %s\n", m.Rank)
	fmt.Fprintf(o.w, "Status: %s\n", m.Status)
	if !m.DateJoined.IsZero() {
		fmt.Fprintf(o.w, "Joined: %s (%d days)\n", m.DateJoined.Format("2006-01-02"), m.DaysInClan)
	}
	if len(m.PastRSNs) > 0 {
		fmt.Fprintf(o.w, "Past names: %s\n", strings.Join(m.PastRSNs, ", "))
	}
	fmt.Fprintf(o.w, "Points: %d\n", m.Points)
}

func (o *Output) printRankHistory(h RankHistory) {
	if len(h.Entries) == 0 {
		fmt.Fprintf(o.w, "No rank history for %s\n", h.RSN)
		return
	}
	fmt.Fprintf(o.w, "Rank history for %s:\n", h.RSN)
	for _, e := range h.Entries {
		from := e.PreviousRank
		if from == "" {
			from = "(joined)"
		}
		by := e.EnactedBy
		if by == "" {
			by = "sync"
		}
		fmt.Fprintf(o.w, "  %s  %s -> %s  by %s\n", e.CreatedAt.Format("2006-01-02 15:04"), from, e.NewRank, by)
	}
}

func (o *Output) printRankChange(c RankChange) {
	if c.Unchanged {
		fmt.Fprintf(o.w, "%s is already %s\n", c.RSN, c.NewRank)
		return
	}
	fmt.Fprintf(o.w, "%s: %s -> %s\n", c.RSN, c.OldRank, c.NewRank)
}

func (o *Output) printBulkResults(r BulkResults) {
	for _, res := range r.Results {
		if res.Error != "" {
			fmt.Fprintf(o.w, "  %s: %s (%s)\n", res.RSN, res.Status, res.Error)
			continue
		}
		fmt.Fprintf(o.w, "  %s: %s\n", res.RSN, res.Status)
	}
}

func (o *Output) printLeaderboard(l Leaderboard) {
	if len(l.Entries) == 0 {
		fmt.Fprintln(o.w, "No members have event points yet")
		return
	}
	fmt.Fprintf(o.w, "Event points leaderboard (page %d of %d):\n", l.Page, l.TotalPages)
	for _, e := range l.Entries {
		fmt.Fprintf(o.w, "  %3d. %s  %d\n", e.Position, e.RSN, e.Points)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	if h.Running != "" {
		fmt.Fprintf(o.w, "Running: %s\n", h.Running)
	}
}

func (o *Output) printTokenResult(t TokenResult) {
	fmt.Fprintf(o.w, "Token: %s\n", t.Token)
	fmt.Fprintf(o.w, "Hash:  %s\n", t.Hash)
	fmt.Fprintln(o.w, "Add the hash to auth.staff_tokens in the server config; keep the token secret.")
}
