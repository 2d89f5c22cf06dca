package postgres

import "time"

type RankRow struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Name    string `gorm:"type:text;not null"`
	NameKey string `gorm:"type:text;not null;uniqueIndex"`
	Type    string `gorm:"type:text;not null"`
}

func (RankRow) TableName() string { return "ranks" }

type MemberRow struct {
	ID         string    `gorm:"primaryKey;type:text"`
	DateJoined time.Time `gorm:"not null"`
	RankID     int64     `gorm:"index"`
	Status     string    `gorm:"type:text;not null;index"`
	LatestXP   int64     `gorm:"not null;default:0"`
}

func (MemberRow) TableName() string { return "members" }

type MemberRSNRow struct {
	MemberID  string    `gorm:"primaryKey;type:text"`
	RSN       string    `gorm:"primaryKey;type:text"`
	IsPrimary bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (MemberRSNRow) TableName() string { return "member_rsns" }

type RankHistoryRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	MemberID       string    `gorm:"type:text;not null;index"`
	PreviousRankID *int64
	NewRankID      int64     `gorm:"not null"`
	EnactedBy      *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (RankHistoryRow) TableName() string { return "rank_history" }

type SnapshotRow struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	MemberID        string    `gorm:"type:text;not null;index"`
	TotalXP         int64     `gorm:"not null"`
	TotalLevel      int       `gorm:"not null"`
	ComputedMetrics string    `gorm:"type:text"`
	RawPayload      string    `gorm:"type:text"`
	SnapshotDate    time.Time `gorm:"not null;index"`
}

func (SnapshotRow) TableName() string { return "wom_snapshots" }

type PointTransactionRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	MemberID  string    `gorm:"type:text;not null;index"`
	Points    int       `gorm:"not null"`
	Reason    string    `gorm:"type:text"`
	EnactedBy *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (PointTransactionRow) TableName() string { return "event_point_transactions" }

type ExemptionRow struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	MemberID          string    `gorm:"type:text;not null;index"`
	ExpirationDate    time.Time `gorm:"not null"`
	GrantedByMemberID *string   `gorm:"type:text"`
	Reason            string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (ExemptionRow) TableName() string { return "inactivity_exemptions" }

type GroupSnapshotRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Payload   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (GroupSnapshotRow) TableName() string { return "group_snapshots" }
