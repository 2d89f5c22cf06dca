package clansync

import (
	"fmt"
	"strings"

	"github.com/mcoot/clanadmin/internal/model"
)

// Report accumulates the ordered, human-readable log of a run
type Report struct {
	lines []string
}

// Line appends a formatted line
func (r *Report) Line(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// Blank appends an empty line
func (r *Report) Blank() {
	r.lines = append(r.lines, "")
}

// Section appends an empty line followed by a section banner
func (r *Report) Section(title string) {
	r.Blank()
	r.Line("--- %s ---", title)
}

// Lines returns a copy of the accumulated lines
func (r *Report) Lines() []string {
	return append([]string(nil), r.lines...)
}

func (r *Report) String() string {
	return strings.Join(r.lines, "\n")
}

func modeLabel(dryRun bool) string {
	if dryRun {
		return "DRY RUN"
	}
	return "LIVE RUN"
}

func (r *Report) writeHeader(opts Options) {
	r.Line("--- Starting Roster Reconciliation (%s) ---", modeLabel(opts.DryRun))
	if opts.Force {
		r.Line("--- WARNING: Force run enabled. Bypassing rank mismatch safety check. ---")
	}
}

func (r *Report) writeCritical(what string, err error) {
	r.Line("CRITICAL ERROR: Halting sync due to data fetching error.")
	r.Line("  > Failed to load %s: %v", what, err)
	r.Blank()
	r.Line("--- NO CHANGES HAVE BEEN MADE TO THE DATABASE ---")
}

func (r *Report) writeResolutions(resolutions []Resolution) {
	applied := 0
	for _, res := range resolutions {
		if res.Kind.Applied() {
			applied++
		}
	}
	r.Line("Name changes: %d received, %d to apply.", len(resolutions), applied)
	for _, res := range resolutions {
		if !res.Kind.Applied() {
			continue
		}
		r.Line("Processing name change: %s -> %s", res.Change.OldName, res.Change.NewName)
		if res.Kind == ResolutionReverted {
			r.Line("  > Reverting to a previous name.")
		}
		if res.TakenFrom != nil {
			r.Line("  > Note: %s was previously linked to member %s.", res.Change.NewName, *res.TakenFrom)
		}
	}
}

func (r *Report) writeUnknownRanks(unknown []UnknownRank) {
	for _, u := range unknown {
		r.Line("Note: %s has rank '%s', which is not a known rank. Not counted as a mismatch.", u.DisplayName, u.Label)
	}
}

func mismatchLine(m Mismatch, ranks *model.RankLookup) string {
	return fmt.Sprintf("%s: DB says '%s', WOM says '%s'", m.DisplayName, ranks.Name(m.OldRankID), m.NewLabel)
}

func (r *Report) writeSafetyChecks(mismatches []Mismatch, ranks *model.RankLookup, threshold int, opts Options, decision Decision) {
	r.Section("Running Safety Checks")
	r.Line("Found %d rank mismatches.", len(mismatches))
	for _, m := range mismatches {
		r.Line("  - %s", mismatchLine(m, ranks))
	}

	switch {
	case opts.Force:
		r.Line("Found %d mismatches. Bypassing safety checks as a forced run was requested.", len(mismatches))
	case decision == Halt:
		r.Blank()
		r.Line("--- !!! SYNC HALTED: CIRCUIT BREAKER TRIGGERED !!! ---")
		r.Line("Found %d rank mismatches, which is over the threshold of %d.", len(mismatches), threshold)
		r.Blank()
		r.Line("ACTION: Please run an in-game WOM sync, wait 5 minutes, and try again.")
		r.Line("If this is intentional, re-run the sync with force enabled.")
		r.Blank()
		r.Line("--- NO CHANGES HAVE BEEN MADE TO THE DATABASE ---")
	default:
		r.Line("Found %d mismatches. (Within threshold of %d). Proceeding with sync.", len(mismatches), threshold)
	}
}

func (r *Report) writeSummary(c Counts, stepErrors int) {
	r.Blank()
	r.Line("Summary: %d new, %d returning, %d departed, %d mismatched, %d unchanged.",
		c.New, c.Returning, c.Departed, c.Mismatched, c.Unchanged)
	if stepErrors > 0 {
		r.Line("Completed with %d errors. See the lines marked ERROR above.", stepErrors)
	}
}

func (r *Report) writeFooter(opts Options) {
	r.Section(fmt.Sprintf("Sync Complete (%s)", modeLabel(opts.DryRun)))
}
