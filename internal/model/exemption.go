package model

import "time"

// ExemptionMonths is how long a granted inactivity exemption lasts
const ExemptionMonths = 3

// Exemption shields a member from inactivity sweeps until ExpiresAt
type Exemption struct {
	MemberID  MemberID
	Reason    string
	GrantedBy *MemberID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ActiveAt reports whether the exemption still applies at the given time
func (e Exemption) ActiveAt(t time.Time) bool {
	return t.Before(e.ExpiresAt)
}
