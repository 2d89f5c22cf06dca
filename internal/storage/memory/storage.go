package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	ranks       map[model.RankID]model.Rank
	nextRankID  model.RankID
	members     map[model.MemberID]*model.Member
	aliases     []model.Alias
	rankHistory map[model.MemberID][]model.RankHistoryEntry
	snapshots   map[model.MemberID][]model.ActivitySnapshot
	points      map[model.MemberID][]model.PointTransaction
	exemptions  []model.Exemption
	groupSnaps  []model.GroupSnapshot
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		ranks:       make(map[model.RankID]model.Rank),
		nextRankID:  1,
		members:     make(map[model.MemberID]*model.Member),
		rankHistory: make(map[model.MemberID][]model.RankHistoryEntry),
		snapshots:   make(map[model.MemberID][]model.ActivitySnapshot),
		points:      make(map[model.MemberID][]model.PointTransaction),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Rank operations

func (s *Storage) ListRanks(ctx context.Context) ([]model.Rank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ranks := make([]model.Rank, 0, len(s.ranks))
	for _, r := range s.ranks {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].ID < ranks[j].ID })
	return ranks, nil
}

func (s *Storage) CreateRank(ctx context.Context, rank *model.Rank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.ranks {
		if model.Normalize(r.Name) == model.Normalize(rank.Name) {
			return model.ErrRankExists
		}
	}
	rank.ID = s.nextRankID
	s.nextRankID++
	s.ranks[rank.ID] = *rank
	return nil
}

// Member operations

func (s *Storage) ListMembers(ctx context.Context) ([]*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]*model.Member, 0, len(s.members))
	for _, m := range s.members {
		cp := *m
		members = append(members, &cp)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *Storage) GetMember(ctx context.Context, id model.MemberID) (*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, model.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Storage) SaveMember(ctx context.Context, member *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *member
	s.members[member.ID] = &cp
	return nil
}

func (s *Storage) SetMembersStatus(ctx context.Context, ids []model.MemberID, status model.MemberStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			m.Status = status
		}
	}
	return nil
}

// Alias operations

func (s *Storage) ListAliases(ctx context.Context) ([]model.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Alias, len(s.aliases))
	copy(result, s.aliases)
	return result, nil
}

func (s *Storage) ListAliasesForMember(ctx context.Context, id model.MemberID) ([]model.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Alias
	for _, a := range s.aliases {
		if a.MemberID == id {
			result = append(result, a)
		}
	}
	return result, nil
}

// SaveAlias upserts the (member, rsn) row. An existing row keeps its creation time.
func (s *Storage) SaveAlias(ctx context.Context, alias model.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alias.IsPrimary {
		s.demoteLocked(alias.MemberID)
	}
	for i := range s.aliases {
		if s.aliases[i].MemberID == alias.MemberID && s.aliases[i].RSN == alias.RSN {
			s.aliases[i].IsPrimary = alias.IsPrimary
			return nil
		}
	}
	s.aliases = append(s.aliases, alias)
	return nil
}

func (s *Storage) RenameAlias(ctx context.Context, id model.MemberID, oldRSN, newRSN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.aliases {
		if s.aliases[i].MemberID == id && s.aliases[i].RSN == oldRSN {
			s.aliases[i].RSN = newRSN
			return nil
		}
	}
	return model.ErrAliasNotFound
}

func (s *Storage) SetPrimaryAlias(ctx context.Context, id model.MemberID, rsn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rsn == "" {
		s.demoteLocked(id)
		return nil
	}
	found := false
	for _, a := range s.aliases {
		if a.MemberID == id && a.RSN == rsn {
			found = true
			break
		}
	}
	if !found {
		return model.ErrAliasNotFound
	}
	for i := range s.aliases {
		if s.aliases[i].MemberID == id {
			s.aliases[i].IsPrimary = s.aliases[i].RSN == rsn
		}
	}
	return nil
}

func (s *Storage) demoteLocked(id model.MemberID) {
	for i := range s.aliases {
		if s.aliases[i].MemberID == id {
			s.aliases[i].IsPrimary = false
		}
	}
}

// Rank history operations

func (s *Storage) AppendRankHistory(ctx context.Context, entries ...model.RankHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.rankHistory[e.MemberID] = append(s.rankHistory[e.MemberID], e)
	}
	return nil
}

func (s *Storage) ListRankHistory(ctx context.Context, id model.MemberID, limit int) ([]model.RankHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.rankHistory[id], limit), nil
}

// Snapshot operations

func (s *Storage) SaveSnapshots(ctx context.Context, snapshots ...model.ActivitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snapshots {
		s.snapshots[snap.MemberID] = append(s.snapshots[snap.MemberID], snap)
		if m, ok := s.members[snap.MemberID]; ok {
			m.LatestXP = snap.TotalXP
		}
	}
	return nil
}

func (s *Storage) ListSnapshots(ctx context.Context, id model.MemberID, limit int) ([]model.ActivitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.snapshots[id], limit), nil
}

// Point operations

func (s *Storage) AddPointTransactions(ctx context.Context, txs ...model.PointTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.points[tx.MemberID] = append(s.points[tx.MemberID], tx)
	}
	return nil
}

func (s *Storage) GetPointsBalance(ctx context.Context, id model.MemberID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, tx := range s.points[id] {
		total += tx.Points
	}
	return total, nil
}

func (s *Storage) ListPointsBalances(ctx context.Context) (map[model.MemberID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make(map[model.MemberID]int, len(s.points))
	for id, txs := range s.points {
		for _, tx := range txs {
			balances[id] += tx.Points
		}
	}
	return balances, nil
}

// Exemption operations

func (s *Storage) AddExemption(ctx context.Context, exemption model.Exemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[exemption.MemberID]; !ok {
		return model.ErrMemberNotFound
	}
	s.exemptions = append(s.exemptions, exemption)
	return nil
}

func (s *Storage) ListExemptions(ctx context.Context) ([]model.Exemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Exemption(nil), s.exemptions...), nil
}

// Group snapshot operations

func (s *Storage) SaveGroupSnapshot(ctx context.Context, snapshot model.GroupSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupSnaps = append(s.groupSnaps, snapshot)
	return nil
}

func (s *Storage) ListGroupSnapshots(ctx context.Context, limit int) ([]model.GroupSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.groupSnaps, limit), nil
}

// newestFirst returns up to limit items in reverse insertion order.
// A non-positive limit returns everything.
func newestFirst[T any](items []T, limit int) []T {
	n := len(items)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]T, 0, n)
	for i := len(items) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, items[i])
	}
	return result
}
