package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/dedupe"
	"github.com/okian/boxoffice/internal/domain/explain"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/domain/talent"
	"github.com/okian/boxoffice/pkg/logger"
	"github.com/okian/boxoffice/pkg/metrics"
)

// Training stage names, used as metric labels.
const (
	StageClean     = "clean"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
	StageAssemble  = "assemble"
	StageFit       = "fit"
	StageSummarize = "summarize"
)

// TrainConfig holds everything that shapes a trained artifact.
type TrainConfig struct {
	ReferenceYear    int
	Clean            model.CleanRules
	Policy           talent.Policy
	Params           gbm.Params
	TestFraction     float64
	MinTrainingSize  int
	ImportanceSample int // 0 summarizes every row
}

// DefaultTrainConfig mirrors the configuration defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		ReferenceYear:   2024,
		Clean:           model.CleanRules{MinBudget: 10_000, MinRevenue: 10_000, RequireRevenue: true},
		Policy:          talent.DefaultPolicy(),
		Params:          gbm.DefaultParams(),
		TestFraction:    revenue.DefaultTestFraction,
		MinTrainingSize: revenue.DefaultMinTrainingSize,
	}
}

// TrainReport describes what a training run did.
type TrainReport struct {
	Input      int
	Duplicates int
	Rejected   map[model.RejectReason]int
	Rows       int
	Genres     int
	Stages     map[string]time.Duration
}

// Pipeline turns raw releases into a model artifact: clean, normalize,
// aggregate talent history, assemble vectors, fit and summarize.
type Pipeline struct {
	runner talent.Runner
	now    func() time.Time
	logger logger.Logger
}

// PipelineOption applies a configuration option to the Pipeline.
type PipelineOption func(*Pipeline)

// WithRunner runs per-person scoring on r, typically the worker pool.
func WithRunner(r talent.Runner) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithClock overrides the time source stamped on artifacts.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline creates a training pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runner: talent.SequentialRunner{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.Get().Named("pipeline")
	return p
}

// Train runs every stage and returns the fitted artifact. Stages run in
// order and the first failure is returned. A release dated outside the
// price index fails the run.
func (p *Pipeline) Train(ctx context.Context, releases []model.Release, points []currency.Point, cfg TrainConfig) (*revenue.Artifact, TrainReport, error) {
	report := TrainReport{
		Input:    len(releases),
		Rejected: map[model.RejectReason]int{},
		Stages:   map[string]time.Duration{},
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, report, err
	}
	cfg.Clean.RequireRevenue = true

	var cleaned []model.Release
	if err := p.stage(ctx, &report, StageClean, func() error {
		cleaned = p.clean(ctx, releases, cfg.Clean, &report)
		return nil
	}); err != nil {
		return nil, report, err
	}

	var normalized []model.NormalizedRelease
	if err := p.stage(ctx, &report, StageNormalize, func() error {
		var err error
		normalized, err = normalize(cleaned, points, cfg.ReferenceYear)
		return err
	}); err != nil {
		return nil, report, err
	}

	var scores map[string]talent.ReleaseScores
	if err := p.stage(ctx, &report, StageAggregate, func() error {
		var err error
		scores, err = talent.ScoreCatalog(ctx, normalized, cfg.Policy, p.runner)
		return err
	}); err != nil {
		return nil, report, err
	}

	var (
		schema  features.Schema
		vectors []features.Vector
		targets []float64
	)
	if err := p.stage(ctx, &report, StageAssemble, func() error {
		var err error
		schema, vectors, targets, err = assemble(normalized, scores, cfg)
		return err
	}); err != nil {
		return nil, report, err
	}
	report.Rows = len(vectors)
	report.Genres = len(schema.Genres)

	var art *revenue.Artifact
	if err := p.stage(ctx, &report, StageFit, func() error {
		var err error
		art, err = revenue.Fit(ctx, schema, vectors, targets,
			revenue.WithParams(cfg.Params),
			revenue.WithTestFraction(cfg.TestFraction),
			revenue.WithMinTrainingSize(cfg.MinTrainingSize),
			revenue.WithTalentSnapshot(talent.BuildBook(normalized, cfg.Policy).Entries()),
			revenue.WithPriceIndex(points),
			revenue.WithClock(p.now),
		)
		return err
	}); err != nil {
		return nil, report, err
	}

	if err := p.stage(ctx, &report, StageSummarize, func() error {
		imp, err := explain.Summarize(ctx, art, sample(vectors, cfg.ImportanceSample, cfg.Params.Seed))
		art.Importance = imp
		return err
	}); err != nil {
		return nil, report, err
	}

	ev := art.Evaluation
	metrics.UpdateTrainingRows("train", ev.TrainRows)
	metrics.UpdateTrainingRows("test", ev.TestRows)
	metrics.UpdateEvaluation("r2_log", ev.R2Log)
	metrics.UpdateEvaluation("r2", ev.R2)
	metrics.UpdateEvaluation("mae", ev.MAE)
	metrics.UpdateEvaluation("rmse", ev.RMSE)
	metrics.UpdateModelTrees(len(art.Ensemble.Trees))

	p.logger.Info(ctx, "model trained",
		logger.String("artifact", art.ID),
		logger.Int("rows", report.Rows),
		logger.Int("features", schema.Width()),
		logger.Float64("r2_log", ev.R2Log),
		logger.Float64("r2", ev.R2),
		logger.Float64("mae", ev.MAE),
		logger.Float64("rmse", ev.RMSE),
	)
	return art, report, nil
}

// stage times fn, records it and stops early when ctx is done.
func (p *Pipeline) stage(ctx context.Context, report *TrainReport, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	report.Stages[name] = elapsed
	metrics.RecordStageDuration(name, float64(elapsed.Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("pipeline", name)
		p.logger.Error(ctx, "stage failed", logger.String("stage", name), logger.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	p.logger.Debug(ctx, "stage done", logger.String("stage", name), logger.Duration("elapsed", elapsed))
	return nil
}

// clean drops repeated IDs and records breaking a rule. The survivors are
// ordered by (release date, ID) so the result does not depend on input order.
func (p *Pipeline) clean(ctx context.Context, releases []model.Release, rules model.CleanRules, report *TrainReport) []model.Release {
	seen := dedupe.NewInMemoryDeduper()
	out := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		if r.ID != "" && seen.SeenAndRecord(ctx, r.ID) {
			report.Duplicates++
			report.Rejected[model.RejectDuplicate]++
			metrics.RecordRecordDuplicate()
			continue
		}
		if reason := rules.Check(r); reason != model.RejectNone {
			report.Rejected[reason]++
			metrics.RecordRecordRejected(string(reason))
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReleaseDate.Equal(out[j].ReleaseDate) {
			return out[i].ReleaseDate.Before(out[j].ReleaseDate)
		}
		return out[i].ID < out[j].ID
	})
	p.logger.Info(ctx, "cleaned releases",
		logger.Int("input", len(releases)),
		logger.Int("kept", len(out)),
		logger.Int("duplicates", report.Duplicates))
	return out
}

func normalize(releases []model.Release, points []currency.Point, referenceYear int) ([]model.NormalizedRelease, error) {
	idx, err := currency.NewIndex(points)
	if err != nil {
		return nil, err
	}
	n := currency.NewNormalizer(idx)
	out := make([]model.NormalizedRelease, 0, len(releases))
	for _, r := range releases {
		nr, err := currency.NormalizeRelease(n, r, referenceYear)
		if err != nil {
			return nil, err
		}
		out = append(out, nr)
	}
	return out, nil
}

func assemble(releases []model.NormalizedRelease, scores map[string]talent.ReleaseScores, cfg TrainConfig) (features.Schema, []features.Vector, []float64, error) {
	schema, err := features.BuildSchema(features.Vocabulary(releases), cfg.Policy, features.ScoreFill(releases), cfg.ReferenceYear)
	if err != nil {
		return features.Schema{}, nil, nil, err
	}
	asm, err := features.NewAssembler(schema)
	if err != nil {
		return features.Schema{}, nil, nil, err
	}
	vectors := make([]features.Vector, 0, len(releases))
	targets := make([]float64, 0, len(releases))
	for _, r := range releases {
		s := scores[r.ID]
		v, err := asm.Assemble(r, s.Director, s.Cast)
		if err != nil {
			return features.Schema{}, nil, nil, fmt.Errorf("release %s: %w", r.ID, err)
		}
		vectors = append(vectors, v)
		targets = append(targets, *r.RevenueAdj)
	}
	return schema, vectors, targets, nil
}

// sample returns up to n vectors chosen with seed; n <= 0 keeps all.
func sample(vectors []features.Vector, n int, seed int64) []features.Vector {
	if n <= 0 || n >= len(vectors) {
		return vectors
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible sample, not security
	idx := rng.Perm(len(vectors))[:n]
	sort.Ints(idx)
	out := make([]features.Vector, n)
	for i, j := range idx {
		out[i] = vectors[j]
	}
	return out
}
