// Package clansync reconciles the external group roster against the local store.
package clansync

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/dependencies/ids"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
)

var tracer = otel.Tracer("github.com/mcoot/clanadmin/internal/services/clansync")

// RosterSource supplies the external data a run reconciles against
type RosterSource interface {
	FetchRoster(ctx context.Context) (model.Roster, json.RawMessage, error)
	FetchNameChanges(ctx context.Context) ([]model.NameChange, error)
	FetchPlayerSnapshot(ctx context.Context, displayName string) (*model.PlayerSnapshot, error)
}

// Options selects the run mode
type Options struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

// Outcome is how a run ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeHalted    Outcome = "halted"
	OutcomeFailed    Outcome = "failed"
)

// Result is a finished run: its report plus structured counts
type Result struct {
	Options    Options   `json:"options"`
	Outcome    Outcome   `json:"outcome"`
	Counts     Counts    `json:"counts"`
	Renames    int       `json:"renames"`
	StepErrors int       `json:"step_errors"`
	Report     string    `json:"report"`
	Promotions []string  `json:"promotions,omitempty"`
	Lines      []string  `json:"-"`
	Diff       *Diff     `json:"-"`
	AliasOps   []AliasOp `json:"-"`
}

// Config holds the tunables of a run
type Config struct {
	MismatchThreshold int             `yaml:"mismatch_threshold"`
	Promotions        []PromotionRule `yaml:"promotions"`
}

// DefaultConfig returns the standard threshold and promotion ladder
func DefaultConfig() Config {
	return Config{
		MismatchThreshold: DefaultMismatchThreshold,
		Promotions:        DefaultPromotionRules(),
	}
}

// Service runs roster reconciliations. Callers serialize runs.
type Service struct {
	storage  storage.Storage
	source   RosterSource
	clock    clock.Clock
	ids      ids.Generator
	logger   *slog.Logger
	cfg      Config
	resolver *Resolver
}

// NewService creates a new sync Service
func NewService(
	storage storage.Storage,
	source RosterSource,
	clock clock.Clock,
	ids ids.Generator,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		storage:  storage,
		source:   source,
		clock:    clock,
		ids:      ids,
		logger:   logger,
		cfg:      cfg,
		resolver: NewResolver(logger),
	}
}

// Run performs one reconciliation. The report is always returned in the
// Result; only a usage error is returned as an error.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Force && opts.DryRun {
		return nil, model.ErrForceDryRun
	}

	ctx, span := tracer.Start(ctx, "Sync.Run", trace.WithAttributes(
		attribute.Bool("sync.dry_run", opts.DryRun),
		attribute.Bool("sync.force", opts.Force),
	))
	defer span.End()

	logger := s.logger.With(slog.Bool("dry_run", opts.DryRun), slog.Bool("force", opts.Force))
	logger.Info("starting roster reconciliation")

	report := &Report{}
	report.writeHeader(opts)
	result := &Result{Options: opts}
	finish := func(outcome Outcome) *Result {
		result.Outcome = outcome
		result.Lines = report.Lines()
		result.Report = report.String()
		span.SetAttributes(attribute.String("sync.outcome", string(outcome)))
		logger.Info("roster reconciliation finished",
			slog.String("outcome", string(outcome)),
			slog.Int("step_errors", result.StepErrors),
		)
		return result
	}

	p, what, err := s.load(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to load data", slog.String("source", what), slog.Any("error", err))
		report.writeCritical(what, err)
		return finish(OutcomeFailed), nil
	}
	report.Line("Loaded %d roster entries, %d members, %d ranks.", len(p.roster), len(p.members), p.ranks.Len())

	// Name changes are best effort; the roster itself is authoritative
	changes, err := s.source.FetchNameChanges(ctx)
	if err != nil {
		logger.Warn("failed to fetch name changes", slog.Any("error", err))
		report.Line("ERROR: Failed to fetch name changes, skipping rename processing. %v", err)
		result.StepErrors++
	}
	resolutions := s.resolve(ctx, p.idx, changes)
	report.writeResolutions(resolutions)
	for _, res := range resolutions {
		if res.Kind.Applied() {
			result.Renames++
		}
	}

	_, diffSpan := tracer.Start(ctx, "Sync.Diff")
	members := make([]*model.Member, 0, len(p.members))
	for _, m := range p.members {
		members = append(members, m)
	}
	p.diff = ComputeDiff(p.roster, p.idx, members, p.ranks)
	diffSpan.End()

	result.Diff = p.diff
	result.AliasOps = p.idx.Ops()
	result.Counts = p.diff.Counts()
	report.writeUnknownRanks(p.diff.UnknownRanks)

	decision := Decide(len(p.diff.Mismatches), s.cfg.MismatchThreshold, opts.Force)
	report.writeSafetyChecks(p.diff.Mismatches, p.ranks, s.cfg.MismatchThreshold, opts, decision)
	if decision == Halt {
		logger.Warn("circuit breaker triggered", slog.Int("mismatches", len(p.diff.Mismatches)))
		return finish(OutcomeHalted), nil
	}

	exec := &executor{
		storage: s.storage,
		source:  s.source,
		ids:     s.ids,
		logger:  logger,
		report:  report,
	}
	execCtx, execSpan := tracer.Start(ctx, "Sync.Execute")
	if opts.DryRun {
		exec.describeDryRun(p)
	} else {
		exec.execute(execCtx, p)
	}
	execSpan.SetAttributes(attribute.Int("sync.step_errors", exec.errors))
	execSpan.End()
	result.StepErrors += exec.errors

	s.promotions(ctx, p, report, result)

	report.writeSummary(result.Counts, result.StepErrors)
	report.writeFooter(opts)
	return finish(OutcomeCompleted), nil
}

// load reads everything a run needs. On failure it names what failed to load.
func (s *Service) load(ctx context.Context, opts Options) (*plan, string, error) {
	ctx, span := tracer.Start(ctx, "Sync.Load")
	defer span.End()

	ranks, err := s.storage.ListRanks(ctx)
	if err != nil {
		return nil, "ranks", err
	}
	aliases, err := s.storage.ListAliases(ctx)
	if err != nil {
		return nil, "aliases", err
	}
	members, err := s.storage.ListMembers(ctx)
	if err != nil {
		return nil, "members", err
	}
	roster, payload, err := s.source.FetchRoster(ctx)
	if err != nil {
		return nil, "external roster", err
	}

	byID := make(map[model.MemberID]*model.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	return &plan{
		opts:    opts,
		now:     s.clock.Now(),
		roster:  roster,
		payload: payload,
		idx:     NewAliasIndex(aliases),
		ranks:   model.NewRankLookup(ranks),
		members: byID,
	}, "", nil
}

func (s *Service) resolve(ctx context.Context, idx *AliasIndex, changes []model.NameChange) []Resolution {
	_, span := tracer.Start(ctx, "Sync.ResolveNameChanges")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.name_changes", len(changes)))
	return s.resolver.Resolve(idx, changes)
}

func (s *Service) promotions(ctx context.Context, p *plan, report *Report, result *Result) {
	ctx, span := tracer.Start(ctx, "Sync.Promotions")
	defer span.End()

	members := make([]*model.Member, 0, len(p.members))
	for _, m := range p.members {
		members = append(members, m)
	}
	if !p.opts.DryRun {
		// Departures were written in bulk; reflect them before evaluating
		departed := make(map[model.MemberID]bool, len(p.diff.Departed))
		for _, d := range p.diff.Departed {
			departed[d.MemberID] = true
		}
		for i, m := range members {
			if departed[m.ID] {
				cp := *m
				cp.Status = model.StatusInactive
				members[i] = &cp
			}
		}
	}

	pending, err := EvaluatePromotions(ctx, s.storage, s.cfg.Promotions, members, p.ranks, p.idx, p.now)
	if err != nil {
		span.RecordError(err)
		report.Section("Staff Action Required: Pending Promotions")
		report.Line("ERROR: Could not evaluate promotions: %v", err)
		result.StepErrors++
		return
	}
	report.writePromotions(s.cfg.Promotions, pending)
	for _, pp := range pending {
		result.Promotions = append(result.Promotions, pp.RSN+": "+pp.Rule.From+" -> "+pp.Rule.To)
	}
}
