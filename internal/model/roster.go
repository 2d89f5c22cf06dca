package model

import "sort"

// RosterEntry is one membership of the tracked external group.
// It exists only for the duration of a run.
type RosterEntry struct {
	DisplayName string
	ExternalID  int64
	RankLabel   string
	CachedXP    *int64 // experience as last seen by the external service, if known
}

// Roster maps normalized names to external roster entries
type Roster map[string]RosterEntry

// Keys returns the normalized names in sorted order
func (r Roster) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NameChange is a rename reported by the external service
type NameChange struct {
	OldName string
	NewName string
}
