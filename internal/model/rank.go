package model

import "time"

// RankID identifies a rank tier
type RankID int64

// RankType groups ranks; ranks first seen on the external roster are typed Other
type RankType string

const (
	RankTypeStandard RankType = "Standard"
	RankTypeStaff    RankType = "Staff"
	RankTypeOther    RankType = "Other"
)

// Rank is a named tier
type Rank struct {
	ID   RankID
	Name string
	Type RankType
}

// RankHistoryEntry is an immutable audit record of a rank transition.
// PreviousRankID is nil for a first assignment; EnactedBy is nil for
// changes made by the sync.
type RankHistoryEntry struct {
	MemberID       MemberID
	PreviousRankID *RankID
	NewRankID      RankID
	EnactedBy      *MemberID
	CreatedAt      time.Time
}

// RankLookup resolves rank labels and ids in both directions
type RankLookup struct {
	byName map[string]RankID
	byID   map[RankID]Rank
}

// NewRankLookup indexes the given ranks by normalized name and id
func NewRankLookup(ranks []Rank) *RankLookup {
	l := &RankLookup{
		byName: make(map[string]RankID, len(ranks)),
		byID:   make(map[RankID]Rank, len(ranks)),
	}
	for _, r := range ranks {
		l.Add(r)
	}
	return l
}

// Add registers a rank, replacing any rank with the same normalized name
func (l *RankLookup) Add(r Rank) {
	l.byName[Normalize(r.Name)] = r.ID
	l.byID[r.ID] = r
}

// IDForLabel returns the rank id for an external rank label
func (l *RankLookup) IDForLabel(label string) (RankID, bool) {
	id, ok := l.byName[Normalize(label)]
	return id, ok
}

// Name returns the rank name for an id, or "Unknown"
func (l *RankLookup) Name(id RankID) string {
	if r, ok := l.byID[id]; ok {
		return r.Name
	}
	return "Unknown"
}

// Len returns the number of known ranks
func (l *RankLookup) Len() int {
	return len(l.byID)
}
