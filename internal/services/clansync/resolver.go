package clansync

import (
	"log/slog"

	"github.com/mcoot/clanadmin/internal/model"
)

// ResolutionKind is the branch a name change took
type ResolutionKind int

const (
	ResolutionUnknownOld ResolutionKind = iota
	ResolutionAlreadyApplied
	ResolutionStale
	ResolutionRenamedInPlace
	ResolutionReverted
	ResolutionRenamed
)

// Applied reports whether the resolution changed the index
func (k ResolutionKind) Applied() bool {
	return k == ResolutionRenamedInPlace || k == ResolutionReverted || k == ResolutionRenamed
}

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionUnknownOld:
		return "unknown old name"
	case ResolutionAlreadyApplied:
		return "already applied"
	case ResolutionStale:
		return "stale"
	case ResolutionRenamedInPlace:
		return "renamed in place"
	case ResolutionReverted:
		return "reverted"
	case ResolutionRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Resolution records what happened to one name change
type Resolution struct {
	Change   model.NameChange
	Kind     ResolutionKind
	MemberID model.MemberID
	// TakenFrom is set when the new name was previously bound to another member
	TakenFrom *model.MemberID
}

// Resolver replays name change events against an AliasIndex
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve applies the changes in order and returns one resolution per change.
// Replaying changes that were already applied leaves the index untouched.
func (r *Resolver) Resolve(idx *AliasIndex, changes []model.NameChange) []Resolution {
	results := make([]Resolution, 0, len(changes))
	for _, ch := range changes {
		res := r.resolveOne(idx, ch)
		r.logger.Debug("resolved name change",
			slog.String("old", ch.OldName),
			slog.String("new", ch.NewName),
			slog.String("result", res.Kind.String()),
		)
		results = append(results, res)
	}
	return results
}

func (r *Resolver) resolveOne(idx *AliasIndex, ch model.NameChange) Resolution {
	oldKey := model.Normalize(ch.OldName)
	newKey := model.Normalize(ch.NewName)
	res := Resolution{Change: ch}

	old, ok := idx.Lookup(oldKey)
	if !ok || oldKey == "" || newKey == "" {
		res.Kind = ResolutionUnknownOld
		return res
	}
	res.MemberID = old.MemberID

	// Same identity, different display string
	if oldKey == newKey {
		if old.RSN == ch.NewName {
			res.Kind = ResolutionAlreadyApplied
			return res
		}
		idx.RenameInPlace(oldKey, ch.NewName)
		res.Kind = ResolutionRenamedInPlace
		return res
	}

	if existing, ok := idx.Lookup(newKey); ok && existing.MemberID == old.MemberID {
		if existing.IsPrimary {
			res.Kind = ResolutionAlreadyApplied
			return res
		}
		// A revert moves the primary back from the member's current name only;
		// from any other name this is a replay of an older event.
		if current, ok := idx.Primary(old.MemberID); !ok || model.Normalize(current.RSN) != oldKey {
			res.Kind = ResolutionStale
			return res
		}
		idx.SetPrimary(old.MemberID, oldKey, newKey)
		res.Kind = ResolutionReverted
		return res
	} else if ok {
		other := existing.MemberID
		res.TakenFrom = &other
		r.logger.Warn("name change takes a name bound to another member",
			slog.String("name", ch.NewName),
			slog.String("member", string(old.MemberID)),
			slog.String("previous_member", string(other)),
		)
	}

	idx.InsertPrimary(old.MemberID, oldKey, ch.NewName)
	res.Kind = ResolutionRenamed
	return res
}
