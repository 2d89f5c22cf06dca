package model

import (
	"encoding/json"
	"time"
)

// PlayerSnapshot is an activity snapshot fetched from the external service
type PlayerSnapshot struct {
	ExternalID int64
	CreatedAt  time.Time
	TotalXP    int64
	TotalLevel int
	EHP        float64
	EHB        float64
	Raw        json.RawMessage
}

// ActivitySnapshot is the persisted, append-only form of a player snapshot
type ActivitySnapshot struct {
	MemberID        MemberID
	TotalXP         int64
	TotalLevel      int
	ComputedMetrics map[string]float64
	RawPayload      json.RawMessage
	SnapshotDate    time.Time
}

// NewActivitySnapshot builds the persisted form of a fetched snapshot
func NewActivitySnapshot(memberID MemberID, s *PlayerSnapshot, now time.Time) ActivitySnapshot {
	return ActivitySnapshot{
		MemberID:   memberID,
		TotalXP:    s.TotalXP,
		TotalLevel: s.TotalLevel,
		ComputedMetrics: map[string]float64{
			"ehp": s.EHP,
			"ehb": s.EHB,
		},
		RawPayload:   s.Raw,
		SnapshotDate: now,
	}
}

// GroupSnapshot is the raw group payload captured at the start of a live sync
type GroupSnapshot struct {
	Payload   json.RawMessage
	CreatedAt time.Time
}
