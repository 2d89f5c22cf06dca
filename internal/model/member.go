package model

import "time"

// MemberID uniquely identifies a clan member
type MemberID string

// MemberStatus tracks whether a member is currently on the external roster
type MemberStatus string

const (
	StatusActive   MemberStatus = "Active"
	StatusInactive MemberStatus = "Inactive"
)

// Member represents a clan participant
type Member struct {
	ID         MemberID
	DateJoined time.Time
	RankID     RankID
	Status     MemberStatus
	LatestXP   int64 // experience from the most recently persisted snapshot
}

// IsActive reports whether the member is currently on the roster
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

// DaysInClan returns whole days elapsed since the member joined
func (m *Member) DaysInClan(now time.Time) int {
	if m.DateJoined.IsZero() {
		return 0
	}
	return int(now.Sub(m.DateJoined).Hours() / 24)
}

// Alias is a registered screen name (RSN) bound to exactly one member.
// At most one alias per member has IsPrimary set.
type Alias struct {
	RSN       string
	MemberID  MemberID
	IsPrimary bool
	CreatedAt time.Time
}

// Normalized returns the identity key of the alias
func (a Alias) Normalized() string {
	return Normalize(a.RSN)
}
