package clansync

import (
	"sort"
	"time"

	"github.com/mcoot/clanadmin/internal/model"
)

// AliasOpKind identifies a store mutation implied by rename resolution
type AliasOpKind int

const (
	// AliasOpRename rewrites the display string of an existing row
	AliasOpRename AliasOpKind = iota
	// AliasOpInsertPrimary demotes the member's primary and inserts a new primary row
	AliasOpInsertPrimary
	// AliasOpSetPrimary moves the primary flag to an existing row
	AliasOpSetPrimary
)

func (k AliasOpKind) String() string {
	switch k {
	case AliasOpRename:
		return "rename"
	case AliasOpInsertPrimary:
		return "insert-primary"
	case AliasOpSetPrimary:
		return "set-primary"
	default:
		return "unknown"
	}
}

// AliasOp is one deferred alias mutation, applied in recording order
type AliasOp struct {
	Kind     AliasOpKind
	MemberID model.MemberID
	OldRSN   string
	NewRSN   string

	// Displaced is the member whose primary name NewRSN was; it loses that primary
	Displaced model.MemberID
}

// aliasEntry is the index's view of one alias row
type aliasEntry struct {
	rsn       string
	memberID  model.MemberID
	primary   bool
	live      bool
	createdAt time.Time
}

// AliasIndex holds every alias row keyed by normalized name.
// Rows renamed away stay known (so reverts can find them) but leave the live view.
// Mutations are recorded as AliasOps rather than written to the store.
type AliasIndex struct {
	byName    map[string]*aliasEntry
	primaries map[model.MemberID]string
	ops       []AliasOp
}

// NewAliasIndex indexes the stored alias rows. When two rows share a
// normalized name the winner does not depend on row order: a primary row beats
// a non-primary one, then the newer row wins, then the lower member id.
func NewAliasIndex(aliases []model.Alias) *AliasIndex {
	idx := &AliasIndex{
		byName:    make(map[string]*aliasEntry, len(aliases)),
		primaries: make(map[model.MemberID]string),
	}
	for _, a := range aliases {
		key := a.Normalized()
		if key == "" {
			continue
		}
		if existing, ok := idx.byName[key]; ok && !outranks(a, existing) {
			continue
		}
		idx.byName[key] = &aliasEntry{rsn: a.RSN, memberID: a.MemberID, primary: a.IsPrimary, live: true, createdAt: a.CreatedAt}
	}
	for key, e := range idx.byName {
		if e.primary {
			idx.primaries[e.memberID] = key
		}
	}
	return idx
}

func outranks(a model.Alias, e *aliasEntry) bool {
	if a.IsPrimary != e.primary {
		return a.IsPrimary
	}
	if !a.CreatedAt.Equal(e.createdAt) {
		return a.CreatedAt.After(e.createdAt)
	}
	return a.MemberID < e.memberID
}

// Lookup returns the row for a normalized name, whether or not it is live
func (idx *AliasIndex) Lookup(key string) (model.Alias, bool) {
	e, ok := idx.byName[key]
	if !ok {
		return model.Alias{}, false
	}
	return model.Alias{RSN: e.rsn, MemberID: e.memberID, IsPrimary: e.primary}, true
}

// Live returns the row for a normalized name if it is in the live view
func (idx *AliasIndex) Live(key string) (model.Alias, bool) {
	e, ok := idx.byName[key]
	if !ok || !e.live {
		return model.Alias{}, false
	}
	return model.Alias{RSN: e.rsn, MemberID: e.memberID, IsPrimary: e.primary}, true
}

// Primary returns the member's primary alias
func (idx *AliasIndex) Primary(id model.MemberID) (model.Alias, bool) {
	key, ok := idx.primaries[id]
	if !ok {
		return model.Alias{}, false
	}
	return idx.Lookup(key)
}

// LiveKeys returns the normalized names of the live view in sorted order
func (idx *AliasIndex) LiveKeys() []string {
	keys := make([]string, 0, len(idx.byName))
	for k, e := range idx.byName {
		if e.live {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Ops returns the recorded mutations in order
func (idx *AliasIndex) Ops() []AliasOp {
	return append([]AliasOp(nil), idx.ops...)
}

// RenameInPlace changes the display string of the row at key
func (idx *AliasIndex) RenameInPlace(key, newRSN string) {
	e := idx.byName[key]
	idx.ops = append(idx.ops, AliasOp{Kind: AliasOpRename, MemberID: e.memberID, OldRSN: e.rsn, NewRSN: newRSN})
	e.rsn = newRSN
}

// InsertPrimary demotes the member's primary and makes newRSN the member's new
// primary. The old row at oldKey leaves the live view.
func (idx *AliasIndex) InsertPrimary(id model.MemberID, oldKey, newRSN string) {
	idx.demote(id)
	if old, ok := idx.byName[oldKey]; ok {
		old.live = false
	}

	op := AliasOp{Kind: AliasOpInsertPrimary, MemberID: id, NewRSN: newRSN}
	newKey := model.Normalize(newRSN)
	if prev, ok := idx.byName[newKey]; ok && prev.memberID != id && prev.primary {
		delete(idx.primaries, prev.memberID)
		op.Displaced = prev.memberID
	}
	idx.byName[newKey] = &aliasEntry{rsn: newRSN, memberID: id, primary: true, live: true}
	idx.primaries[id] = newKey
	idx.ops = append(idx.ops, op)
}

// SetPrimary moves the member's primary flag to the existing row at newKey.
// The row at oldKey leaves the live view.
func (idx *AliasIndex) SetPrimary(id model.MemberID, oldKey, newKey string) {
	idx.demote(id)
	if old, ok := idx.byName[oldKey]; ok {
		old.live = false
	}

	e := idx.byName[newKey]
	e.primary = true
	e.live = true
	idx.primaries[id] = newKey
	idx.ops = append(idx.ops, AliasOp{Kind: AliasOpSetPrimary, MemberID: id, NewRSN: e.rsn})
}

// AddMember registers a newly created member's primary alias.
// No op is recorded; the member insert writes the row itself.
func (idx *AliasIndex) AddMember(id model.MemberID, rsn string) {
	key := model.Normalize(rsn)
	idx.byName[key] = &aliasEntry{rsn: rsn, memberID: id, primary: true, live: true}
	idx.primaries[id] = key
}

func (idx *AliasIndex) demote(id model.MemberID) {
	if key, ok := idx.primaries[id]; ok {
		if e, ok := idx.byName[key]; ok && e.memberID == id {
			e.primary = false
		}
		delete(idx.primaries, id)
	}
}
