package clansync

import (
	"sort"

	"github.com/mcoot/clanadmin/internal/model"
)

// NewEntry is a roster entry with no live alias
type NewEntry struct {
	Key   string
	Entry model.RosterEntry
}

// ReturningEntry is an inactive member whose primary alias is back on the roster
type ReturningEntry struct {
	Key       string
	MemberID  model.MemberID
	Entry     model.RosterEntry
	OldRankID model.RankID
}

// Mismatch is an active member whose roster rank differs from the stored rank
type Mismatch struct {
	Key         string
	MemberID    model.MemberID
	DisplayName string
	OldRankID   model.RankID
	NewRankID   model.RankID
	NewLabel    string
}

// UnknownRank is an active member whose roster rank has no local rank
type UnknownRank struct {
	DisplayName string
	Label       string
}

// DepartedEntry is an active member not reached by a primary alias on the roster
type DepartedEntry struct {
	MemberID model.MemberID
	RSN      string
}

// Diff classifies the roster against the store. Every slice is sorted.
type Diff struct {
	New          []NewEntry
	Returning    []ReturningEntry
	Mismatches   []Mismatch
	UnknownRanks []UnknownRank
	Departed     []DepartedEntry
	// Tracked maps each roster key matched through a primary alias to its member
	Tracked   map[string]model.MemberID
	Unchanged int
}

// ComputeDiff classifies every roster entry and every active member.
// Only primary aliases affect ranks, reactivation and departure.
func ComputeDiff(roster model.Roster, idx *AliasIndex, members []*model.Member, ranks *model.RankLookup) *Diff {
	byID := make(map[model.MemberID]*model.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	d := &Diff{Tracked: make(map[string]model.MemberID)}
	reached := make(map[model.MemberID]bool)

	for _, key := range roster.Keys() {
		entry := roster[key]
		alias, ok := idx.Live(key)
		if !ok {
			d.New = append(d.New, NewEntry{Key: key, Entry: entry})
			continue
		}
		if !alias.IsPrimary {
			d.Unchanged++
			continue
		}

		member, ok := byID[alias.MemberID]
		if !ok {
			d.Unchanged++
			continue
		}
		reached[member.ID] = true
		d.Tracked[key] = member.ID

		if !member.IsActive() {
			d.Returning = append(d.Returning, ReturningEntry{
				Key:       key,
				MemberID:  member.ID,
				Entry:     entry,
				OldRankID: member.RankID,
			})
			continue
		}

		rankID, known := ranks.IDForLabel(entry.RankLabel)
		switch {
		case !known:
			d.UnknownRanks = append(d.UnknownRanks, UnknownRank{DisplayName: entry.DisplayName, Label: entry.RankLabel})
			d.Unchanged++
		case rankID != member.RankID:
			d.Mismatches = append(d.Mismatches, Mismatch{
				Key:         key,
				MemberID:    member.ID,
				DisplayName: entry.DisplayName,
				OldRankID:   member.RankID,
				NewRankID:   rankID,
				NewLabel:    entry.RankLabel,
			})
		default:
			d.Unchanged++
		}
	}

	for _, m := range members {
		if !m.IsActive() || reached[m.ID] {
			continue
		}
		rsn := string(m.ID)
		if primary, ok := idx.Primary(m.ID); ok {
			rsn = primary.RSN
		}
		d.Departed = append(d.Departed, DepartedEntry{MemberID: m.ID, RSN: rsn})
	}
	sort.Slice(d.Departed, func(i, j int) bool {
		return d.Departed[i].MemberID < d.Departed[j].MemberID
	})

	return d
}

// DepartedIDs returns the ids of departed members
func (d *Diff) DepartedIDs() []model.MemberID {
	ids := make([]model.MemberID, len(d.Departed))
	for i, dep := range d.Departed {
		ids[i] = dep.MemberID
	}
	return ids
}

// Counts summarizes the classification
func (d *Diff) Counts() Counts {
	return Counts{
		New:        len(d.New),
		Returning:  len(d.Returning),
		Mismatched: len(d.Mismatches),
		Departed:   len(d.Departed),
		Unchanged:  d.Unchanged,
	}
}

// Counts is the number of entries in each classification
type Counts struct {
	New        int `json:"new"`
	Returning  int `json:"returning"`
	Mismatched int `json:"mismatched"`
	Departed   int `json:"departed"`
	Unchanged  int `json:"unchanged"`
}
