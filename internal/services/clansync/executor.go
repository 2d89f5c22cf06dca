package clansync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/clanadmin/internal/dependencies/ids"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

// plan is everything the executor needs, computed before the gate
type plan struct {
	opts    Options
	now     time.Time
	roster  model.Roster
	payload json.RawMessage
	diff    *Diff
	idx     *AliasIndex
	ranks   *model.RankLookup
	members map[model.MemberID]*model.Member
}

// executor applies a plan to the store. Every step runs even if an earlier
// one failed; failures become report lines.
type executor struct {
	storage storage.Storage
	source  RosterSource
	ids     ids.Generator
	logger  *slog.Logger
	report  *Report

	errors int
}

func (e *executor) fail(format string, args ...any) {
	e.errors++
	e.report.Line(format, args...)
}

// missingRanks returns the labels of new and returning entries with no local rank, in order
func missingRanks(p *plan) []string {
	seen := make(map[string]bool)
	var labels []string
	add := func(label string) {
		key := model.Normalize(label)
		if _, ok := p.ranks.IDForLabel(label); ok || seen[key] || key == "" {
			return
		}
		seen[key] = true
		labels = append(labels, label)
	}
	for _, n := range p.diff.New {
		add(n.Entry.RankLabel)
	}
	for _, ret := range p.diff.Returning {
		add(ret.Entry.RankLabel)
	}
	return labels
}

// snapshotTargets returns the roster keys whose snapshot should be fetched,
// and how many were skipped because the cached experience is unchanged
func snapshotTargets(p *plan) (keys []string, skipped int) {
	isNew := make(map[string]bool, len(p.diff.New))
	for _, n := range p.diff.New {
		isNew[n.Key] = true
	}

	for _, key := range p.roster.Keys() {
		if isNew[key] {
			keys = append(keys, key)
			continue
		}
		id, ok := p.diff.Tracked[key]
		if !ok {
			continue
		}
		cached := p.roster[key].CachedXP
		if m := p.members[id]; m != nil && cached != nil && *cached == m.LatestXP {
			skipped++
			continue
		}
		keys = append(keys, key)
	}
	return keys, skipped
}

// describeDryRun reports what a live run would write
func (e *executor) describeDryRun(p *plan) {
	e.logger.Info("dry run, not saving group snapshot")
	r := e.report
	r.Section("(DRY RUN) SKIPPING ALL DATABASE WRITES")

	r.Line("Would apply %d name changes.", len(p.idx.Ops()))
	for _, label := range missingRanks(p) {
		r.Line("Note: Rank '%s' (normalized: '%s') not found.", label, model.Normalize(label))
		r.Line("  > Would create new 'Other' rank: %s", label)
	}

	r.Line("Would add %d new members.", len(p.diff.New))
	for _, n := range p.diff.New {
		r.Line("  + %s (Rank: %s)", n.Entry.DisplayName, n.Entry.RankLabel)
	}

	r.Line("Would reactivate %d returning members.", len(p.diff.Returning))
	for _, ret := range p.diff.Returning {
		r.Line("  + %s: %s -> %s", ret.Entry.DisplayName, p.ranks.Name(ret.OldRankID), ret.Entry.RankLabel)
	}

	r.Line("Would deactivate %d members.", len(p.diff.Departed))
	for _, dep := range p.diff.Departed {
		r.Line("  - %s", dep.RSN)
	}

	keys, skipped := snapshotTargets(p)
	r.Line("Would fetch %d player snapshots (%d skipped as unchanged).", len(keys), skipped)
}

// execute runs every write step in order
func (e *executor) execute(ctx context.Context, p *plan) {
	e.saveGroupSnapshot(ctx, p)
	if p.opts.Force && len(p.diff.Mismatches) > 0 {
		e.forceRankUpdates(ctx, p)
	}

	e.report.Section("EXECUTING LIVE DATABASE WRITES")
	e.applyAliasOps(ctx, p)
	e.createMissingRanks(ctx, p)
	e.addNewMembers(ctx, p)
	e.reactivateReturning(ctx, p)
	e.deactivateDeparted(ctx, p)
	e.persistSnapshots(ctx, p)
}

// saveGroupSnapshot archives the raw group payload. A failure is a warning,
// not a step error.
func (e *executor) saveGroupSnapshot(ctx context.Context, p *plan) {
	if len(p.payload) == 0 {
		return
	}
	err := e.storage.SaveGroupSnapshot(ctx, model.GroupSnapshot{Payload: p.payload, CreatedAt: p.now})
	if err != nil {
		e.logger.Warn("failed to save group snapshot", slog.Any("error", err))
		e.report.Line("Warning: Failed to insert group snapshot: %v", err)
		return
	}
	e.logger.Info("saved group snapshot", slog.Int("bytes", len(p.payload)))
}

func (e *executor) applyAliasOps(ctx context.Context, p *plan) {
	ops := p.idx.Ops()
	if len(ops) == 0 {
		return
	}

	e.report.Line("Applying %d name changes...", len(ops))
	for _, op := range ops {
		var err error
		switch op.Kind {
		case AliasOpRename:
			err = e.storage.RenameAlias(ctx, op.MemberID, op.OldRSN, op.NewRSN)
		case AliasOpInsertPrimary:
			if op.Displaced != "" {
				if err := e.storage.SetPrimaryAlias(ctx, op.Displaced, ""); err != nil {
					e.fail("  > ERROR: Failed to release %s from its previous holder. %v", op.NewRSN, err)
					continue
				}
			}
			err = e.storage.SaveAlias(ctx, model.Alias{RSN: op.NewRSN, MemberID: op.MemberID, IsPrimary: true, CreatedAt: p.now})
		case AliasOpSetPrimary:
			err = e.storage.SetPrimaryAlias(ctx, op.MemberID, op.NewRSN)
		}
		if err != nil {
			e.fail("  > ERROR: Failed to apply name change to %s. %v", op.NewRSN, err)
		}
	}
}

func (e *executor) createMissingRanks(ctx context.Context, p *plan) {
	for _, label := range missingRanks(p) {
		e.report.Line("Note: Rank '%s' (normalized: '%s') not found.", label, model.Normalize(label))
		rank := &model.Rank{Name: label, Type: model.RankTypeOther}
		if err := e.storage.CreateRank(ctx, rank); err != nil {
			e.fail("  > ERROR: Could not create new rank '%s'. %v", label, err)
			continue
		}
		p.ranks.Add(*rank)
		e.report.Line("  > Successfully created new 'Other' rank: %s", label)
	}
}

func (e *executor) forceRankUpdates(ctx context.Context, p *plan) {
	e.report.Section("EXECUTING FORCED RANK UPDATES")

	var history []model.RankHistoryEntry
	for _, mm := range p.diff.Mismatches {
		member := p.members[mm.MemberID]
		if member == nil {
			e.fail("  - ERROR: Cannot update %s. %v", mm.DisplayName, model.ErrMemberNotFound)
			continue
		}

		updated := *member
		updated.RankID = mm.NewRankID
		if err := e.storage.SaveMember(ctx, &updated); err != nil {
			e.fail("  - ERROR: Failed to auto-update rank for %s: %v", mm.DisplayName, err)
			continue
		}
		p.members[mm.MemberID] = &updated

		prev := mm.OldRankID
		history = append(history, model.RankHistoryEntry{
			MemberID:       mm.MemberID,
			PreviousRankID: &prev,
			NewRankID:      mm.NewRankID,
			CreatedAt:      p.now,
		})
		e.report.Line("  - %s: %s -> %s", mm.DisplayName, p.ranks.Name(mm.OldRankID), mm.NewLabel)
	}

	if err := e.storage.AppendRankHistory(ctx, history...); err != nil {
		e.fail("  - ERROR: Failed to insert rank history: %v", err)
	}
}

func (e *executor) addNewMembers(ctx context.Context, p *plan) {
	if len(p.diff.New) == 0 {
		return
	}

	e.report.Line("Adding %d new members...", len(p.diff.New))
	var history []model.RankHistoryEntry
	for _, n := range p.diff.New {
		rankID, ok := p.ranks.IDForLabel(n.Entry.RankLabel)
		if !ok {
			e.fail("  > ERROR: Cannot add %s. Rank '%s' is unknown.", n.Entry.DisplayName, n.Entry.RankLabel)
			continue
		}

		member := &model.Member{
			ID:         model.MemberID(e.ids.NewID()),
			DateJoined: p.now,
			RankID:     rankID,
			Status:     model.StatusActive,
		}
		if n.Entry.CachedXP != nil {
			member.LatestXP = *n.Entry.CachedXP
		}

		if err := e.storage.SaveMember(ctx, member); err != nil {
			e.fail("  > ERROR: Failed to add %s: %v", n.Entry.DisplayName, err)
			continue
		}
		alias := model.Alias{RSN: n.Entry.DisplayName, MemberID: member.ID, IsPrimary: true, CreatedAt: p.now}
		if err := e.storage.SaveAlias(ctx, alias); err != nil {
			e.fail("  > ERROR: Failed to link %s to its member: %v", n.Entry.DisplayName, err)
			continue
		}

		p.members[member.ID] = member
		p.idx.AddMember(member.ID, n.Entry.DisplayName)
		p.diff.Tracked[n.Key] = member.ID
		history = append(history, model.RankHistoryEntry{
			MemberID:  member.ID,
			NewRankID: rankID,
			CreatedAt: p.now,
		})
		e.report.Line("  + %s (Rank: %s)", n.Entry.DisplayName, n.Entry.RankLabel)
	}

	if err := e.storage.AppendRankHistory(ctx, history...); err != nil {
		e.fail("  > ERROR: Failed to insert rank history for new members: %v", err)
		return
	}
	e.report.Line("New member processing complete.")
}

func (e *executor) reactivateReturning(ctx context.Context, p *plan) {
	if len(p.diff.Returning) == 0 {
		return
	}

	e.report.Line("Reactivating %d returning members...", len(p.diff.Returning))
	var history []model.RankHistoryEntry
	for _, ret := range p.diff.Returning {
		member := p.members[ret.MemberID]
		if member == nil {
			e.fail("  > ERROR: Cannot reactivate %s. %v", ret.Entry.DisplayName, model.ErrMemberNotFound)
			continue
		}
		rankID, ok := p.ranks.IDForLabel(ret.Entry.RankLabel)
		if !ok {
			e.fail("  > ERROR: Cannot reactivate %s. Rank '%s' is unknown.", ret.Entry.DisplayName, ret.Entry.RankLabel)
			continue
		}

		updated := *member
		updated.Status = model.StatusActive
		updated.RankID = rankID
		if err := e.storage.SaveMember(ctx, &updated); err != nil {
			e.fail("  > ERROR: Failed to reactivate %s: %v", ret.Entry.DisplayName, err)
			continue
		}
		p.members[ret.MemberID] = &updated

		prev := ret.OldRankID
		history = append(history, model.RankHistoryEntry{
			MemberID:       ret.MemberID,
			PreviousRankID: &prev,
			NewRankID:      rankID,
			CreatedAt:      p.now,
		})
		e.report.Line("  + %s: %s -> %s", ret.Entry.DisplayName, p.ranks.Name(ret.OldRankID), ret.Entry.RankLabel)
	}

	if err := e.storage.AppendRankHistory(ctx, history...); err != nil {
		e.fail("  > ERROR: Failed to insert rank history for returning members: %v", err)
		return
	}
	e.report.Line("Returning member processing complete.")
}

func (e *executor) deactivateDeparted(ctx context.Context, p *plan) {
	if len(p.diff.Departed) == 0 {
		return
	}

	e.report.Line("Deactivating %d departed members...", len(p.diff.Departed))
	for _, dep := range p.diff.Departed {
		e.report.Line("  - %s", dep.RSN)
	}
	if err := e.storage.SetMembersStatus(ctx, p.diff.DepartedIDs(), model.StatusInactive); err != nil {
		e.fail("ERROR deactivating members: %v", err)
		return
	}
	e.report.Line("Deactivation complete.")
}

func (e *executor) persistSnapshots(ctx context.Context, p *plan) {
	keys, skipped := snapshotTargets(p)
	e.report.Line("Fetching %d player snapshots (%d skipped as unchanged)...", len(keys), skipped)

	var snapshots []model.ActivitySnapshot
	for _, key := range keys {
		id, ok := p.diff.Tracked[key]
		if !ok {
			continue
		}
		entry := p.roster[key]
		snap, err := e.source.FetchPlayerSnapshot(ctx, entry.DisplayName)
		if err != nil {
			if ctx.Err() != nil {
				e.fail("ERROR: Snapshot fetching interrupted: %v", ctx.Err())
				break
			}
			// Per-player failures keep the previously persisted value
			e.report.Line("Warning: Could not fetch snapshot for %s. %s", entry.DisplayName, fetchReason(err))
			e.logger.Warn("snapshot fetch failed", slog.String("rsn", entry.DisplayName), slog.Any("error", err))
			continue
		}
		if snap == nil {
			continue
		}
		snapshots = append(snapshots, model.NewActivitySnapshot(id, snap, p.now))
	}

	if len(snapshots) == 0 {
		e.report.Line("No new snapshots to insert.")
		return
	}

	e.report.Line("Inserting %d stat snapshots...", len(snapshots))
	if err := e.storage.SaveSnapshots(ctx, snapshots...); err != nil {
		e.fail("ERROR inserting snapshots: %v", err)
		return
	}
	e.report.Line("Snapshot insertion complete.")
}

func fetchReason(err error) string {
	if errors.Is(err, model.ErrPlayerNotTracked) {
		return "Player is not tracked."
	}
	return fmt.Sprintf("%v", err)
}
