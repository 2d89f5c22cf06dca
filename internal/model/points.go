package model

import "time"

// PointTransaction records event points granted to (or removed from) a member
type PointTransaction struct {
	MemberID  MemberID
	Points    int
	Reason    string
	EnactedBy *MemberID
	CreatedAt time.Time
}
