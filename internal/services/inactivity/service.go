// Package inactivity finds active members who have stopped gaining experience.
package inactivity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

var tracer = otel.Tracer("github.com/mcoot/clanadmin/internal/services/inactivity")

const day = 24 * time.Hour

// HistorySource supplies a player's external snapshots, newest first
type HistorySource interface {
	FetchSnapshots(ctx context.Context, displayName string, start, end time.Time) ([]model.PlayerSnapshot, error)
}

// Config holds the inactivity thresholds, all in days
type Config struct {
	ShortPeriodRanks []string `yaml:"short_period_ranks"`
	ShortThreshold   int      `yaml:"short_threshold_days"`
	LongThreshold    int      `yaml:"long_threshold_days"`
	AtRiskMargin     int      `yaml:"at_risk_margin_days"`
	// ExtraLookback is how far past the threshold external history is searched
	ExtraLookback int `yaml:"extra_lookback_days"`
	SampleSize    int `yaml:"sample_size"`
}

// DefaultConfig returns the clan's standard inactivity rules
func DefaultConfig() Config {
	return Config{
		ShortPeriodRanks: []string{"Sapphire", "Emerald", "Ruby"},
		ShortThreshold:   30,
		LongThreshold:    60,
		AtRiskMargin:     5,
		ExtraLookback:    30,
		SampleSize:       5,
	}
}

// Finding is a verified member who is inactive or close to it
type Finding struct {
	MemberID     model.MemberID `json:"member_id"`
	RSN          string         `json:"rsn"`
	RankName     string         `json:"rank"`
	DaysInactive int            `json:"days_inactive"`
	NoActivity   bool           `json:"no_activity"` // no gain found within Lookback days
	Lookback     int            `json:"lookback_days"`
	LatestXP     int64          `json:"latest_xp"`
	DaysInClan   int            `json:"days_in_clan"` // -1 when the join date is unknown
	Threshold    int            `json:"threshold_days"`
	Reason       string         `json:"reason"`
}

func (f Finding) inactiveLabel() string {
	if f.NoActivity {
		return fmt.Sprintf(">%d", f.Lookback)
	}
	return fmt.Sprintf("%d", f.DaysInactive)
}

func (f Finding) sortKey() int {
	if f.NoActivity {
		return 9999
	}
	return f.DaysInactive
}

// Result is a finished inactivity check
type Result struct {
	Inactive   []Finding `json:"inactive"`
	AtRisk     []Finding `json:"at_risk"`
	Checked    int       `json:"checked"`
	Flagged    int       `json:"flagged"`
	Unverified []string  `json:"unverified,omitempty"`
	Exempt     []string  `json:"exempt,omitempty"`
	Report     string    `json:"report"`
}

// Service runs inactivity checks
type Service struct {
	storage storage.Storage
	source  HistorySource
	clock   clock.Clock
	logger  *slog.Logger
	cfg     Config
	short   map[string]bool
}

// New creates a new inactivity Service
func New(storage storage.Storage, source HistorySource, clock clock.Clock, logger *slog.Logger, cfg Config) *Service {
	short := make(map[string]bool, len(cfg.ShortPeriodRanks))
	for _, r := range cfg.ShortPeriodRanks {
		short[model.Normalize(r)] = true
	}
	return &Service{
		storage: storage,
		source:  source,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
		short:   short,
	}
}

func (s *Service) threshold(rankName string) int {
	if s.short[model.Normalize(rankName)] {
		return s.cfg.ShortThreshold
	}
	return s.cfg.LongThreshold
}

// Run checks every active member. Members whose local snapshots look idle are
// verified against external history before being reported.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Inactivity.Run")
	defer span.End()

	members, err := s.storage.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.storage.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	ranks, err := s.storage.ListRanks(ctx)
	if err != nil {
		return nil, err
	}
	exemptions, err := s.storage.ListExemptions(ctx)
	if err != nil {
		return nil, err
	}
	lookup := model.NewRankLookup(ranks)
	primaries := make(map[model.MemberID]string)
	for _, a := range aliases {
		if a.IsPrimary {
			primaries[a.MemberID] = a.RSN
		}
	}

	now := s.clock.Now()
	exempt := make(map[model.MemberID]bool)
	for _, e := range exemptions {
		if e.ActiveAt(now) {
			exempt[e.MemberID] = true
		}
	}

	result := &Result{}
	for _, m := range members {
		if !m.IsActive() {
			continue
		}
		rsn, ok := primaries[m.ID]
		if !ok {
			rsn = "Unknown"
		}
		if exempt[m.ID] {
			result.Exempt = append(result.Exempt, rsn)
			continue
		}
		result.Checked++
		rankName := lookup.Name(m.RankID)
		threshold := s.threshold(rankName)
		logger := s.logger.With(slog.String("rsn", rsn), slog.Int("threshold", threshold))

		snaps, err := s.storage.ListSnapshots(ctx, m.ID, s.cfg.SampleSize)
		if err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			logger.Debug("no snapshots, skipping")
			continue
		}
		reason := flagReason(snaps, threshold, now)
		if reason == "" {
			continue
		}
		result.Flagged++
		logger.Info("flagged for verification", slog.String("reason", reason))

		lookback := threshold + s.cfg.ExtraLookback
		days, found, err := s.lastActivity(ctx, rsn, lookback, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("could not verify activity", slog.Any("error", err))
			result.Unverified = append(result.Unverified, rsn)
			continue
		}

		f := Finding{
			MemberID:     m.ID,
			RSN:          rsn,
			RankName:     rankName,
			DaysInactive: days,
			NoActivity:   !found,
			Lookback:     lookback,
			LatestXP:     snaps[0].TotalXP,
			DaysInClan:   m.DaysInClan(now),
			Threshold:    threshold,
			Reason:       reason,
		}
		if m.DateJoined.IsZero() {
			f.DaysInClan = -1
		}
		switch {
		case !found || days >= threshold:
			result.Inactive = append(result.Inactive, f)
		case days >= threshold-s.cfg.AtRiskMargin:
			result.AtRisk = append(result.AtRisk, f)
		default:
			logger.Debug("recent activity found", slog.Int("days", days))
		}
	}

	sort.Strings(result.Exempt)
	sortFindings(result.Inactive)
	sortFindings(result.AtRisk)
	result.Report = buildReport(result)
	span.SetAttributes(
		attribute.Int("inactivity.checked", result.Checked),
		attribute.Int("inactivity.inactive", len(result.Inactive)),
		attribute.Int("inactivity.at_risk", len(result.AtRisk)),
		attribute.Int("inactivity.exempt", len(result.Exempt)),
	)
	return result, nil
}

// flagReason returns why the local snapshots suggest inactivity, or "" if they don't.
// snaps is newest first and non-empty.
func flagReason(snaps []model.ActivitySnapshot, threshold int, now time.Time) string {
	if len(snaps) == 1 {
		return "only 1 snapshot"
	}
	if age := int(now.Sub(snaps[0].SnapshotDate) / day); age > threshold {
		return fmt.Sprintf("latest snapshot is %d days old", age)
	}
	for _, snap := range snaps[1:] {
		if snap.TotalXP != snaps[0].TotalXP {
			return ""
		}
	}
	return "XP unchanged across snapshots"
}

// lastActivity returns the days since the player's most recent experience gain
// within the lookback window. found is false when no gain was seen.
func (s *Service) lastActivity(ctx context.Context, rsn string, lookback int, now time.Time) (days int, found bool, err error) {
	snaps, err := s.source.FetchSnapshots(ctx, rsn, now.Add(-time.Duration(lookback)*day), now)
	if err != nil {
		return 0, false, err
	}
	for i := 0; i+1 < len(snaps); i++ {
		if snaps[i].TotalXP > snaps[i+1].TotalXP {
			return int(now.Sub(snaps[i].CreatedAt) / day), true, nil
		}
	}
	return 0, false, nil
}

func sortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].sortKey() != findings[j].sortKey() {
			return findings[i].sortKey() > findings[j].sortKey()
		}
		return findings[i].RSN < findings[j].RSN
	})
}

func findingLine(f Finding) string {
	joined := "?"
	if f.DaysInClan >= 0 {
		joined = fmt.Sprintf("%d", f.DaysInClan)
	}
	return fmt.Sprintf("%s | %s | %.1fm XP | %s days inactive | %s days in clan",
		f.RSN, f.RankName, float64(f.LatestXP)/1_000_000, f.inactiveLabel(), joined)
}

func buildReport(r *Result) string {
	lines := []string{"Inactive Members Report", ""}

	if len(r.Inactive) > 0 {
		lines = append(lines, fmt.Sprintf("Eligible for Removal (%d)", len(r.Inactive)))
		for _, f := range r.Inactive {
			lines = append(lines, findingLine(f))
		}
		lines = append(lines, "")
	}

	if len(r.AtRisk) > 0 {
		lines = append(lines, "Approaching Inactivity Criteria", "", fmt.Sprintf("At Risk (%d)", len(r.AtRisk)))
		for _, f := range r.AtRisk {
			lines = append(lines, findingLine(f))
		}
		lines = append(lines, "")
	}

	if len(r.Inactive) == 0 && len(r.AtRisk) == 0 {
		lines = append(lines, "No inactive or at-risk members found!", "")
	}

	if len(r.Unverified) > 0 {
		lines = append(lines, fmt.Sprintf("Could not verify %d members: %s", len(r.Unverified), strings.Join(r.Unverified, ", ")), "")
	}

	if len(r.Exempt) > 0 {
		lines = append(lines, fmt.Sprintf("Skipped %d exempt members: %s", len(r.Exempt), strings.Join(r.Exempt, ", ")), "")
	}

	return strings.Join(lines, "\n")
}
