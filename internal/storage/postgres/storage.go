package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

const ranksCacheKey = "ranks"

// Storage is a gorm-backed implementation of the storage interface
type Storage struct {
	db    *gorm.DB
	ranks *cache.Cache
}

// New wraps an open, migrated database
func New(db *gorm.DB) *Storage {
	return &Storage{
		db:    db,
		ranks: cache.New(10*time.Minute, 15*time.Minute),
	}
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Rank operations

func (s *Storage) ListRanks(ctx context.Context) ([]model.Rank, error) {
	if cached, found := s.ranks.Get(ranksCacheKey); found {
		ranks := cached.([]model.Rank)
		return append([]model.Rank(nil), ranks...), nil
	}

	var rows []RankRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list ranks")
	}

	ranks := make([]model.Rank, len(rows))
	for i, row := range rows {
		ranks[i] = model.Rank{ID: model.RankID(row.ID), Name: row.Name, Type: model.RankType(row.Type)}
	}
	s.ranks.Set(ranksCacheKey, ranks, cache.DefaultExpiration)
	return append([]model.Rank(nil), ranks...), nil
}

func (s *Storage) CreateRank(ctx context.Context, rank *model.Rank) error {
	row := RankRow{
		Name:    rank.Name,
		NameKey: model.Normalize(rank.Name),
		Type:    string(rank.Type),
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&RankRow{}).Where("name_key = ?", row.NameKey).Count(&existing).Error; err != nil {
		return errors.Wrap(err, "failed to check rank name")
	}
	if existing > 0 {
		return model.ErrRankExists
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.ErrRankExists
		}
		return errors.Wrap(err, "failed to create rank")
	}

	s.ranks.Delete(ranksCacheKey)
	rank.ID = model.RankID(row.ID)
	return nil
}

// Member operations

func (s *Storage) ListMembers(ctx context.Context) ([]*model.Member, error) {
	var rows []MemberRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list members")
	}

	members := make([]*model.Member, len(rows))
	for i, row := range rows {
		members[i] = memberFromRow(row)
	}
	return members, nil
}

func (s *Storage) GetMember(ctx context.Context, id model.MemberID) (*model.Member, error) {
	var row MemberRow
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrMemberNotFound
		}
		return nil, errors.Wrap(err, "failed to get member")
	}
	return memberFromRow(row), nil
}

func (s *Storage) SaveMember(ctx context.Context, member *model.Member) error {
	row := MemberRow{
		ID:         string(member.ID),
		DateJoined: member.DateJoined,
		RankID:     int64(member.RankID),
		Status:     string(member.Status),
		LatestXP:   member.LatestXP,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"date_joined", "rank_id", "status", "latest_xp"}),
	}).Create(&row).Error
	return errors.Wrap(err, "failed to save member")
}

func (s *Storage) SetMembersStatus(ctx context.Context, ids []model.MemberID, status model.MemberStatus) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	err := s.db.WithContext(ctx).Model(&MemberRow{}).
		Where("id IN ?", keys).
		Update("status", string(status)).Error
	return errors.Wrap(err, "failed to update member status")
}

func memberFromRow(row MemberRow) *model.Member {
	return &model.Member{
		ID:         model.MemberID(row.ID),
		DateJoined: row.DateJoined,
		RankID:     model.RankID(row.RankID),
		Status:     model.MemberStatus(row.Status),
		LatestXP:   row.LatestXP,
	}
}

// Alias operations

func (s *Storage) ListAliases(ctx context.Context) ([]model.Alias, error) {
	var rows []MemberRSNRow
	if err := s.db.WithContext(ctx).Order("member_id, rsn").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list aliases")
	}
	return aliasesFromRows(rows), nil
}

func (s *Storage) ListAliasesForMember(ctx context.Context, id model.MemberID) ([]model.Alias, error) {
	var rows []MemberRSNRow
	err := s.db.WithContext(ctx).Where("member_id = ?", string(id)).Order("rsn").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list member aliases")
	}
	return aliasesFromRows(rows), nil
}

func (s *Storage) SaveAlias(ctx context.Context, alias model.Alias) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if alias.IsPrimary {
			if err := demote(tx, alias.MemberID); err != nil {
				return err
			}
		}
		row := MemberRSNRow{
			MemberID:  string(alias.MemberID),
			RSN:       alias.RSN,
			IsPrimary: alias.IsPrimary,
			CreatedAt: alias.CreatedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_id"}, {Name: "rsn"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_primary"}),
		}).Create(&row).Error
	})
	return errors.Wrap(err, "failed to save alias")
}

func (s *Storage) RenameAlias(ctx context.Context, id model.MemberID, oldRSN, newRSN string) error {
	result := s.db.WithContext(ctx).Model(&MemberRSNRow{}).
		Where("member_id = ? AND rsn = ?", string(id), oldRSN).
		Update("rsn", newRSN)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to rename alias")
	}
	if result.RowsAffected == 0 {
		return model.ErrAliasNotFound
	}
	return nil
}

func (s *Storage) SetPrimaryAlias(ctx context.Context, id model.MemberID, rsn string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rsn != "" {
			var count int64
			err := tx.Model(&MemberRSNRow{}).
				Where("member_id = ? AND rsn = ?", string(id), rsn).
				Count(&count).Error
			if err != nil {
				return errors.Wrap(err, "failed to look up alias")
			}
			if count == 0 {
				return model.ErrAliasNotFound
			}
		}

		if err := demote(tx, id); err != nil {
			return err
		}
		if rsn == "" {
			return nil
		}
		err := tx.Model(&MemberRSNRow{}).
			Where("member_id = ? AND rsn = ?", string(id), rsn).
			Update("is_primary", true).Error
		return errors.Wrap(err, "failed to set primary alias")
	})
}

func demote(tx *gorm.DB, id model.MemberID) error {
	err := tx.Model(&MemberRSNRow{}).
		Where("member_id = ? AND is_primary = ?", string(id), true).
		Update("is_primary", false).Error
	return errors.Wrap(err, "failed to demote aliases")
}

func aliasesFromRows(rows []MemberRSNRow) []model.Alias {
	aliases := make([]model.Alias, len(rows))
	for i, row := range rows {
		aliases[i] = model.Alias{
			RSN:       row.RSN,
			MemberID:  model.MemberID(row.MemberID),
			IsPrimary: row.IsPrimary,
			CreatedAt: row.CreatedAt,
		}
	}
	return aliases
}

// Rank history operations

func (s *Storage) AppendRankHistory(ctx context.Context, entries ...model.RankHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]RankHistoryRow, len(entries))
	for i, e := range entries {
		rows[i] = RankHistoryRow{
			MemberID:  string(e.MemberID),
			NewRankID: int64(e.NewRankID),
			EnactedBy: (*string)(e.EnactedBy),
			CreatedAt: e.CreatedAt,
		}
		if e.PreviousRankID != nil {
			prev := int64(*e.PreviousRankID)
			rows[i].PreviousRankID = &prev
		}
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rows).Error, "failed to append rank history")
}

func (s *Storage) ListRankHistory(ctx context.Context, id model.MemberID, limit int) ([]model.RankHistoryEntry, error) {
	var rows []RankHistoryRow
	if err := newestFirst(s.db.WithContext(ctx), id, limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list rank history")
	}

	entries := make([]model.RankHistoryEntry, len(rows))
	for i, row := range rows {
		entries[i] = model.RankHistoryEntry{
			MemberID:  model.MemberID(row.MemberID),
			NewRankID: model.RankID(row.NewRankID),
			EnactedBy: (*model.MemberID)(row.EnactedBy),
			CreatedAt: row.CreatedAt,
		}
		if row.PreviousRankID != nil {
			prev := model.RankID(*row.PreviousRankID)
			entries[i].PreviousRankID = &prev
		}
	}
	return entries, nil
}

// Snapshot operations

func (s *Storage) SaveSnapshots(ctx context.Context, snapshots ...model.ActivitySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]SnapshotRow, len(snapshots))
	latest := make(map[string]int64, len(snapshots))
	for i, snap := range snapshots {
		metrics, err := json.Marshal(snap.ComputedMetrics)
		if err != nil {
			return errors.Wrap(err, "failed to encode computed metrics")
		}
		rows[i] = SnapshotRow{
			MemberID:        string(snap.MemberID),
			TotalXP:         snap.TotalXP,
			TotalLevel:      snap.TotalLevel,
			ComputedMetrics: string(metrics),
			RawPayload:      string(snap.RawPayload),
			SnapshotDate:    snap.SnapshotDate,
		}
		latest[string(snap.MemberID)] = snap.TotalXP
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		for id, xp := range latest {
			if err := tx.Model(&MemberRow{}).Where("id = ?", id).Update("latest_xp", xp).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "failed to save snapshots")
}

func (s *Storage) ListSnapshots(ctx context.Context, id model.MemberID, limit int) ([]model.ActivitySnapshot, error) {
	var rows []SnapshotRow
	if err := newestFirst(s.db.WithContext(ctx), id, limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}

	snapshots := make([]model.ActivitySnapshot, len(rows))
	for i, row := range rows {
		var metrics map[string]float64
		if row.ComputedMetrics != "" {
			if err := json.Unmarshal([]byte(row.ComputedMetrics), &metrics); err != nil {
				return nil, errors.Wrap(err, "failed to decode computed metrics")
			}
		}
		snapshots[i] = model.ActivitySnapshot{
			MemberID:        model.MemberID(row.MemberID),
			TotalXP:         row.TotalXP,
			TotalLevel:      row.TotalLevel,
			ComputedMetrics: metrics,
			SnapshotDate:    row.SnapshotDate,
		}
		if row.RawPayload != "" {
			snapshots[i].RawPayload = json.RawMessage(row.RawPayload)
		}
	}
	return snapshots, nil
}

// Point operations

func (s *Storage) AddPointTransactions(ctx context.Context, txs ...model.PointTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]PointTransactionRow, len(txs))
	for i, tx := range txs {
		rows[i] = PointTransactionRow{
			MemberID:  string(tx.MemberID),
			Points:    tx.Points,
			Reason:    tx.Reason,
			EnactedBy: (*string)(tx.EnactedBy),
			CreatedAt: tx.CreatedAt,
		}
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rows).Error, "failed to add point transactions")
}

func (s *Storage) GetPointsBalance(ctx context.Context, id model.MemberID) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&PointTransactionRow{}).
		Where("member_id = ?", string(id)).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum points")
	}
	return int(total), nil
}

func (s *Storage) ListPointsBalances(ctx context.Context) (map[model.MemberID]int, error) {
	var rows []struct {
		MemberID string
		Total    int64
	}
	err := s.db.WithContext(ctx).Model(&PointTransactionRow{}).
		Select("member_id, SUM(points) AS total").
		Group("member_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum point balances")
	}
	balances := make(map[model.MemberID]int, len(rows))
	for _, row := range rows {
		balances[model.MemberID(row.MemberID)] = int(row.Total)
	}
	return balances, nil
}

// Exemption operations

func (s *Storage) AddExemption(ctx context.Context, exemption model.Exemption) error {
	if _, err := s.GetMember(ctx, exemption.MemberID); err != nil {
		return err
	}
	row := ExemptionRow{
		MemberID:          string(exemption.MemberID),
		ExpirationDate:    exemption.ExpiresAt,
		GrantedByMemberID: (*string)(exemption.GrantedBy),
		Reason:            exemption.Reason,
		CreatedAt:         exemption.CreatedAt,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "failed to add exemption")
}

func (s *Storage) ListExemptions(ctx context.Context) ([]model.Exemption, error) {
	var rows []ExemptionRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list exemptions")
	}
	exemptions := make([]model.Exemption, len(rows))
	for i, row := range rows {
		exemptions[i] = model.Exemption{
			MemberID:  model.MemberID(row.MemberID),
			Reason:    row.Reason,
			GrantedBy: (*model.MemberID)(row.GrantedByMemberID),
			ExpiresAt: row.ExpirationDate,
			CreatedAt: row.CreatedAt,
		}
	}
	return exemptions, nil
}

// Group snapshot operations

func (s *Storage) SaveGroupSnapshot(ctx context.Context, snapshot model.GroupSnapshot) error {
	row := GroupSnapshotRow{
		Payload:   string(snapshot.Payload),
		CreatedAt: snapshot.CreatedAt,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "failed to save group snapshot")
}

func (s *Storage) ListGroupSnapshots(ctx context.Context, limit int) ([]model.GroupSnapshot, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []GroupSnapshotRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list group snapshots")
	}
	snapshots := make([]model.GroupSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = model.GroupSnapshot{
			Payload:   json.RawMessage(row.Payload),
			CreatedAt: row.CreatedAt,
		}
	}
	return snapshots, nil
}

// newestFirst scopes a member's append-only rows, latest insert first.
// A non-positive limit returns everything.
func newestFirst(db *gorm.DB, id model.MemberID, limit int) *gorm.DB {
	q := db.Where("member_id = ?", string(id)).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
