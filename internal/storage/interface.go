package storage

import (
	"context"

	"github.com/mcoot/clanadmin/internal/model"
)

// Storage defines the interface for data persistence.
// Each call commits on its own; there is no transaction spanning calls.
type Storage interface {
	// Rank operations
	ListRanks(ctx context.Context) ([]model.Rank, error)
	CreateRank(ctx context.Context, rank *model.Rank) error

	// Member operations
	ListMembers(ctx context.Context) ([]*model.Member, error)
	GetMember(ctx context.Context, id model.MemberID) (*model.Member, error)
	SaveMember(ctx context.Context, member *model.Member) error
	SetMembersStatus(ctx context.Context, ids []model.MemberID, status model.MemberStatus) error

	// Alias (RSN) operations
	ListAliases(ctx context.Context) ([]model.Alias, error)
	ListAliasesForMember(ctx context.Context, id model.MemberID) ([]model.Alias, error)
	SaveAlias(ctx context.Context, alias model.Alias) error
	RenameAlias(ctx context.Context, id model.MemberID, oldRSN, newRSN string) error
	// SetPrimaryAlias marks exactly the given RSN of the member as primary.
	// An empty rsn demotes every alias of the member.
	SetPrimaryAlias(ctx context.Context, id model.MemberID, rsn string) error

	// Rank history operations (append-only)
	AppendRankHistory(ctx context.Context, entries ...model.RankHistoryEntry) error
	ListRankHistory(ctx context.Context, id model.MemberID, limit int) ([]model.RankHistoryEntry, error)

	// Activity snapshot operations (append-only)
	SaveSnapshots(ctx context.Context, snapshots ...model.ActivitySnapshot) error
	ListSnapshots(ctx context.Context, id model.MemberID, limit int) ([]model.ActivitySnapshot, error)

	// Event point operations
	AddPointTransactions(ctx context.Context, txs ...model.PointTransaction) error
	GetPointsBalance(ctx context.Context, id model.MemberID) (int, error)
	// ListPointsBalances returns the summed balance of every member with transactions
	ListPointsBalances(ctx context.Context) (map[model.MemberID]int, error)

	// Inactivity exemption operations
	AddExemption(ctx context.Context, exemption model.Exemption) error
	// ListExemptions returns every exemption ever granted, oldest first
	ListExemptions(ctx context.Context) ([]model.Exemption, error)

	// Group snapshot operations (append-only)
	SaveGroupSnapshot(ctx context.Context, snapshot model.GroupSnapshot) error
	ListGroupSnapshots(ctx context.Context, limit int) ([]model.GroupSnapshot, error)
}
