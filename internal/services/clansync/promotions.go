package clansync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// PromotionRule describes when a member of one rank is due for the next
type PromotionRule struct {
	From          string `yaml:"from" json:"from"`
	To            string `yaml:"to" json:"to"`
	MinDays       int    `yaml:"min_days" json:"min_days"`
	MinTotalLevel int    `yaml:"min_total_level" json:"min_total_level"`
}

// DefaultPromotionRules returns the clan's standard promotion ladder
func DefaultPromotionRules() []PromotionRule {
	return []PromotionRule{
		{From: "Sapphire", To: "Emerald", MinDays: 30},
		{From: "Emerald", To: "Ruby", MinDays: 56, MinTotalLevel: 1250},
	}
}

// Label describes the rule's criteria
func (r PromotionRule) Label() string {
	if r.MinTotalLevel > 0 {
		return fmt.Sprintf("%s -> %s (>= %d days & %d+ total)", r.From, r.To, r.MinDays, r.MinTotalLevel)
	}
	return fmt.Sprintf("%s -> %s (>= %d days)", r.From, r.To, r.MinDays)
}

// PendingPromotion is a member who meets a rule's criteria
type PendingPromotion struct {
	Rule       PromotionRule
	MemberID   model.MemberID
	RSN        string
	DaysInClan int
	TotalLevel int
}

// EvaluatePromotions lists active members due for promotion, grouped by rule
// in rule order and sorted by tenure within a rule.
func EvaluatePromotions(
	ctx context.Context,
	store storage.Storage,
	rules []PromotionRule,
	members []*model.Member,
	ranks *model.RankLookup,
	idx *AliasIndex,
	now time.Time,
) ([]PendingPromotion, error) {
	var pending []PendingPromotion
	for _, rule := range rules {
		fromID, ok := ranks.IDForLabel(rule.From)
		if !ok {
			continue
		}

		var matched []PendingPromotion
		for _, m := range members {
			if !m.IsActive() || m.RankID != fromID {
				continue
			}
			days := m.DaysInClan(now)
			if days < rule.MinDays {
				continue
			}

			level := 0
			if rule.MinTotalLevel > 0 {
				snaps, err := store.ListSnapshots(ctx, m.ID, 1)
				if err != nil {
					return nil, err
				}
				if len(snaps) > 0 {
					level = snaps[0].TotalLevel
				}
				if level < rule.MinTotalLevel {
					continue
				}
			}

			rsn := string(m.ID)
			if primary, ok := idx.Primary(m.ID); ok {
				rsn = primary.RSN
			}
			matched = append(matched, PendingPromotion{
				Rule:       rule,
				MemberID:   m.ID,
				RSN:        rsn,
				DaysInClan: days,
				TotalLevel: level,
			})
		}

		sort.SliceStable(matched, func(i, j int) bool {
			if matched[i].DaysInClan != matched[j].DaysInClan {
				return matched[i].DaysInClan > matched[j].DaysInClan
			}
			return matched[i].RSN < matched[j].RSN
		})
		pending = append(pending, matched...)
	}
	return pending, nil
}

func (r *Report) writePromotions(rules []PromotionRule, pending []PendingPromotion) {
	r.Section("Staff Action Required: Pending Promotions")
	r.Line("Promote in-game, then run: clanctl rank set <rsn> <rank>")
	if len(pending) == 0 {
		r.Line("  No pending auto-promotions found.")
		return
	}

	for _, rule := range rules {
		header := false
		for _, p := range pending {
			if p.Rule != rule {
				continue
			}
			if !header {
				r.Blank()
				r.Line("  %s:", rule.Label())
				header = true
			}
			if rule.MinTotalLevel > 0 {
				r.Line("    - %s (%d days, %d total)", p.RSN, p.DaysInClan, p.TotalLevel)
			} else {
				r.Line("    - %s (%d days)", p.RSN, p.DaysInClan)
			}
		}
	}
}
