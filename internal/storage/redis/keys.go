package redis

import (
	"fmt"

	"github.com/mcoot/clanadmin/internal/model"
)

// Key prefix for all clan data
const keyPrefix = "clan"

// rankKey returns the Redis key for a Rank
func rankKey(id model.RankID) string {
	return fmt.Sprintf("%s:rank:%d", keyPrefix, id)
}

// ranksIndexKey returns the Redis key for the SET of rank ids
func ranksIndexKey() string {
	return fmt.Sprintf("%s:idx:ranks", keyPrefix)
}

// rankNameIndexKey returns the Redis key for the HASH of normalized rank name -> id
func rankNameIndexKey() string {
	return fmt.Sprintf("%s:idx:rank_name", keyPrefix)
}

// rankSequenceKey returns the counter used to allocate rank ids
func rankSequenceKey() string {
	return fmt.Sprintf("%s:seq:rank", keyPrefix)
}

// memberKey returns the Redis key for a Member
func memberKey(id model.MemberID) string {
	return fmt.Sprintf("%s:member:%s", keyPrefix, id)
}

// membersIndexKey returns the Redis key for the SET of member ids
func membersIndexKey() string {
	return fmt.Sprintf("%s:idx:members", keyPrefix)
}

// aliasesKey returns the Redis key for the HASH of rsn -> alias for a member
func aliasesKey(id model.MemberID) string {
	return fmt.Sprintf("%s:aliases:%s", keyPrefix, id)
}

// aliasOwnersIndexKey returns the Redis key for the SET of members owning aliases
func aliasOwnersIndexKey() string {
	return fmt.Sprintf("%s:idx:alias_owners", keyPrefix)
}

// rankHistoryKey returns the Redis key for a member's rank history LIST (newest first)
func rankHistoryKey(id model.MemberID) string {
	return fmt.Sprintf("%s:rank_history:%s", keyPrefix, id)
}

// snapshotsKey returns the Redis key for a member's snapshot LIST (newest first)
func snapshotsKey(id model.MemberID) string {
	return fmt.Sprintf("%s:snapshots:%s", keyPrefix, id)
}

// pointsKey returns the Redis key for a member's point transaction LIST
func pointsKey(id model.MemberID) string {
	return fmt.Sprintf("%s:points:%s", keyPrefix, id)
}

// pointsBalanceKey returns the Redis key for a member's running point balance
func pointsBalanceKey(id model.MemberID) string {
	return fmt.Sprintf("%s:points_balance:%s", keyPrefix, id)
}

// exemptionsKey returns the Redis key for the LIST of inactivity exemptions (oldest first)
func exemptionsKey() string {
	return fmt.Sprintf("%s:exemptions", keyPrefix)
}

// groupSnapshotsKey returns the Redis key for the LIST of group payloads (newest first)
func groupSnapshotsKey() string {
	return fmt.Sprintf("%s:group_snapshots", keyPrefix)
}
