package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Rank operations

func (s *Storage) ListRanks(ctx context.Context) ([]model.Rank, error) {
	ids, err := s.client.SMembers(ctx, ranksIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Rank{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue // Skip invalid data
		}
		keys = append(keys, rankKey(model.RankID(id)))
	}

	ranks, err := mgetJSON[model.Rank](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].ID < ranks[j].ID })
	return ranks, nil
}

func (s *Storage) CreateRank(ctx context.Context, rank *model.Rank) error {
	id, err := s.client.Incr(ctx, rankSequenceKey()).Result()
	if err != nil {
		return err
	}

	// The name index doubles as the uniqueness guard
	claimed, err := s.client.HSetNX(ctx, rankNameIndexKey(), model.Normalize(rank.Name), id).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return model.ErrRankExists
	}

	rank.ID = model.RankID(id)
	data, err := json.Marshal(rank)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, rankKey(rank.ID), data, 0)
	pipe.SAdd(ctx, ranksIndexKey(), int64(rank.ID))
	_, err = pipe.Exec(ctx)
	return err
}

// Member operations

func (s *Storage) ListMembers(ctx context.Context) ([]*model.Member, error) {
	ids, err := s.client.SMembers(ctx, membersIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Member{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = memberKey(model.MemberID(id))
	}

	values, err := mgetJSON[model.Member](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	members := make([]*model.Member, len(values))
	for i := range values {
		members[i] = &values[i]
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *Storage) GetMember(ctx context.Context, id model.MemberID) (*model.Member, error) {
	data, err := s.client.Get(ctx, memberKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMemberNotFound
		}
		return nil, err
	}

	var member model.Member
	if err := json.Unmarshal(data, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *Storage) SaveMember(ctx context.Context, member *model.Member) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, memberKey(member.ID), data, 0)
	pipe.SAdd(ctx, membersIndexKey(), string(member.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) SetMembersStatus(ctx context.Context, ids []model.MemberID, status model.MemberStatus) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		member, err := s.GetMember(ctx, id)
		if errors.Is(err, model.ErrMemberNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		member.Status = status
		data, err := json.Marshal(member)
		if err != nil {
			return err
		}
		pipe.Set(ctx, memberKey(id), data, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Alias operations

type aliasRecord struct {
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Storage) ListAliases(ctx context.Context) ([]model.Alias, error) {
	owners, err := s.client.SMembers(ctx, aliasOwnersIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(owners)

	var result []model.Alias
	for _, owner := range owners {
		aliases, err := s.ListAliasesForMember(ctx, model.MemberID(owner))
		if err != nil {
			return nil, err
		}
		result = append(result, aliases...)
	}
	return result, nil
}

func (s *Storage) ListAliasesForMember(ctx context.Context, id model.MemberID) ([]model.Alias, error) {
	fields, err := s.client.HGetAll(ctx, aliasesKey(id)).Result()
	if err != nil {
		return nil, err
	}

	result := make([]model.Alias, 0, len(fields))
	for rsn, raw := range fields {
		var rec aliasRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue // Skip invalid data
		}
		result = append(result, model.Alias{RSN: rsn, MemberID: id, IsPrimary: rec.IsPrimary, CreatedAt: rec.CreatedAt})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RSN < result[j].RSN })
	return result, nil
}

// SaveAlias upserts the (member, rsn) row. An existing row keeps its creation time.
func (s *Storage) SaveAlias(ctx context.Context, alias model.Alias) error {
	existing, err := s.ListAliasesForMember(ctx, alias.MemberID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, a := range existing {
		if a.RSN == alias.RSN {
			alias.CreatedAt = a.CreatedAt
			continue
		}
		if alias.IsPrimary && a.IsPrimary {
			pipe.HSet(ctx, aliasesKey(a.MemberID), a.RSN, mustAliasRecord(a, false))
		}
	}
	pipe.HSet(ctx, aliasesKey(alias.MemberID), alias.RSN, mustAliasRecord(alias, alias.IsPrimary))
	pipe.SAdd(ctx, aliasOwnersIndexKey(), string(alias.MemberID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) RenameAlias(ctx context.Context, id model.MemberID, oldRSN, newRSN string) error {
	raw, err := s.client.HGet(ctx, aliasesKey(id), oldRSN).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ErrAliasNotFound
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, aliasesKey(id), oldRSN)
	pipe.HSet(ctx, aliasesKey(id), newRSN, raw)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) SetPrimaryAlias(ctx context.Context, id model.MemberID, rsn string) error {
	aliases, err := s.ListAliasesForMember(ctx, id)
	if err != nil {
		return err
	}

	if rsn != "" {
		found := false
		for _, a := range aliases {
			if a.RSN == rsn {
				found = true
				break
			}
		}
		if !found {
			return model.ErrAliasNotFound
		}
	}

	pipe := s.client.TxPipeline()
	for _, a := range aliases {
		pipe.HSet(ctx, aliasesKey(id), a.RSN, mustAliasRecord(a, a.RSN == rsn))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func mustAliasRecord(a model.Alias, primary bool) string {
	data, _ := json.Marshal(aliasRecord{IsPrimary: primary, CreatedAt: a.CreatedAt})
	return string(data)
}

// Rank history operations

func (s *Storage) AppendRankHistory(ctx context.Context, entries ...model.RankHistoryEntry) error {
	pipe := s.client.TxPipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.LPush(ctx, rankHistoryKey(e.MemberID), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) ListRankHistory(ctx context.Context, id model.MemberID, limit int) ([]model.RankHistoryEntry, error) {
	return lrangeJSON[model.RankHistoryEntry](ctx, s.client, rankHistoryKey(id), limit)
}

// Snapshot operations

func (s *Storage) SaveSnapshots(ctx context.Context, snapshots ...model.ActivitySnapshot) error {
	latest := make(map[model.MemberID]int64, len(snapshots))

	pipe := s.client.TxPipeline()
	for _, snap := range snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		key := snapshotsKey(snap.MemberID)
		pipe.LPush(ctx, key, data)
		if s.cfg.SnapshotCap > 0 {
			pipe.LTrim(ctx, key, 0, s.cfg.SnapshotCap-1)
		}
		latest[snap.MemberID] = snap.TotalXP
	}

	for id, xp := range latest {
		member, err := s.GetMember(ctx, id)
		if errors.Is(err, model.ErrMemberNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		member.LatestXP = xp
		data, err := json.Marshal(member)
		if err != nil {
			return err
		}
		pipe.Set(ctx, memberKey(id), data, 0)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) ListSnapshots(ctx context.Context, id model.MemberID, limit int) ([]model.ActivitySnapshot, error) {
	return lrangeJSON[model.ActivitySnapshot](ctx, s.client, snapshotsKey(id), limit)
}

// Point operations

func (s *Storage) AddPointTransactions(ctx context.Context, txs ...model.PointTransaction) error {
	pipe := s.client.TxPipeline()
	for _, tx := range txs {
		data, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		pipe.LPush(ctx, pointsKey(tx.MemberID), data)
		pipe.IncrBy(ctx, pointsBalanceKey(tx.MemberID), int64(tx.Points))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) GetPointsBalance(ctx context.Context, id model.MemberID) (int, error) {
	balance, err := s.client.Get(ctx, pointsBalanceKey(id)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (s *Storage) ListPointsBalances(ctx context.Context) (map[model.MemberID]int, error) {
	ids, err := s.client.SMembers(ctx, membersIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	balances := make(map[model.MemberID]int)
	if len(ids) == 0 {
		return balances, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = pointsBalanceKey(model.MemberID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		balance, err := strconv.Atoi(str)
		if err != nil {
			continue
		}
		balances[model.MemberID(ids[i])] = balance
	}
	return balances, nil
}

// Exemption operations

func (s *Storage) AddExemption(ctx context.Context, exemption model.Exemption) error {
	exists, err := s.client.SIsMember(ctx, membersIndexKey(), string(exemption.MemberID)).Result()
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrMemberNotFound
	}
	data, err := json.Marshal(exemption)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, exemptionsKey(), data).Err()
}

func (s *Storage) ListExemptions(ctx context.Context) ([]model.Exemption, error) {
	return lrangeJSON[model.Exemption](ctx, s.client, exemptionsKey(), 0)
}

// Group snapshot operations

func (s *Storage) SaveGroupSnapshot(ctx context.Context, snapshot model.GroupSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, groupSnapshotsKey(), data)
	if s.cfg.SnapshotCap > 0 {
		pipe.LTrim(ctx, groupSnapshotsKey(), 0, s.cfg.SnapshotCap-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) ListGroupSnapshots(ctx context.Context, limit int) ([]model.GroupSnapshot, error) {
	return lrangeJSON[model.GroupSnapshot](ctx, s.client, groupSnapshotsKey(), limit)
}

// mgetJSON fetches and decodes the values at keys, skipping missing or invalid entries
func mgetJSON[T any](ctx context.Context, client *redis.Client, keys []string) ([]T, error) {
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(values))
	for _, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			continue // Skip invalid data
		}
		result = append(result, item)
	}
	return result, nil
}

// lrangeJSON decodes up to limit items from the head of a list.
// A non-positive limit returns everything.
func lrangeJSON[T any](ctx context.Context, client *redis.Client, key string, limit int) ([]T, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	values, err := client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(values))
	for _, val := range values {
		var item T
		if err := json.Unmarshal([]byte(val), &item); err != nil {
			continue // Skip invalid data
		}
		result = append(result, item)
	}
	return result, nil
}
