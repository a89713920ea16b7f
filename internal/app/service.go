// Package service provides the forecasting service behind the HTTP API and
// the CLI, and the training pipeline that produces its artifacts.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/explain"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/domain/talent"
	"github.com/okian/boxoffice/internal/domain/types"
	"github.com/okian/boxoffice/pkg/logger"
	"github.com/okian/boxoffice/pkg/metrics"
)

// requestID stands in for the release ID of an unreleased film.
const requestID = "request"

// ArtifactLoader reads a stored artifact.
type ArtifactLoader interface {
	Load(ctx context.Context) (*revenue.Artifact, error)
}

// loaded is everything rebuilt from one artifact. It is never mutated, so
// concurrent predictions read it without locks.
type loaded struct {
	artifact   *revenue.Artifact
	normalizer *currency.Normalizer
	book       *talent.Book
	assembler  *features.Assembler
	at         time.Time
}

// Service answers prediction and model queries against the loaded artifact.
type Service struct {
	current     atomic.Pointer[loaded]
	predictions atomic.Int64
	failures    atomic.Int64
	startedAt   time.Time
	now         func() time.Time
	logger      logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow overrides the service clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service with no model loaded.
func New(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.startedAt = s.now()
	return s
}

// Load makes a the serving model. In-flight predictions finish on the
// model they started with.
func (s *Service) Load(ctx context.Context, a *revenue.Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", revenue.ErrInvalidArtifact)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	n, err := a.Normalizer()
	if err != nil {
		return err
	}
	asm, err := features.NewAssembler(a.Schema)
	if err != nil {
		return fmt.Errorf("%w: %w", revenue.ErrInvalidArtifact, err)
	}
	l := &loaded{artifact: a, normalizer: n, book: a.Book(), assembler: asm, at: s.now()}
	s.current.Store(l)

	metrics.UpdateArtifactLoaded(l.at.Unix())
	metrics.UpdateModelTrees(len(a.Ensemble.Trees))
	s.logger.Info(ctx, "artifact loaded",
		logger.String("artifact", a.ID),
		logger.Int("features", a.Schema.Width()),
		logger.Int("trees", len(a.Ensemble.Trees)),
		logger.Int("talent_entries", len(a.Talent)))
	return nil
}

// LoadFrom reads an artifact from src and loads it.
func (s *Service) LoadFrom(ctx context.Context, src ArtifactLoader) error {
	a, err := src.Load(ctx)
	if err != nil {
		return err
	}
	return s.Load(ctx, a)
}

func (s *Service) model() (*loaded, error) {
	l := s.current.Load()
	if l == nil {
		return nil, types.ErrNoArtifact
	}
	return l, nil
}

// Predict forecasts revenue for the film in req with per-feature contributions.
func (s *Service) Predict(ctx context.Context, req types.PredictRequest) (types.Prediction, error) {
	start := time.Now()
	pred, err := s.predict(req)
	metrics.RecordPredictionLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		s.failures.Add(1)
		metrics.RecordPrediction("error")
		s.logger.Debug(ctx, "prediction rejected", logger.Error(err))
		return types.Prediction{}, err
	}
	s.predictions.Add(1)
	metrics.RecordPrediction("ok")
	return pred, nil
}

func (s *Service) predict(req types.PredictRequest) (types.Prediction, error) {
	m, err := s.model()
	if err != nil {
		return types.Prediction{}, err
	}
	rel, err := ReleaseFromRequest(req)
	if err != nil {
		return types.Prediction{}, err
	}
	a := m.artifact

	norm, err := currency.NormalizeRelease(m.normalizer, rel, a.Schema.ReferenceYear)
	if err != nil {
		return types.Prediction{}, err
	}
	scores := m.book.ReleaseScores(rel)
	vec, err := m.assembler.Assemble(norm, scores.Director, scores.Cast)
	if err != nil {
		return types.Prediction{}, err
	}
	est, err := revenue.Predict(a, vec)
	if err != nil {
		return types.Prediction{}, err
	}
	exp, err := explain.Explain(a, vec)
	if err != nil {
		return types.Prediction{}, err
	}

	unseen := m.assembler.UnseenGenres(rel.Genres)
	if len(unseen) > 0 {
		metrics.RecordUnseenGenres(len(unseen))
	}
	return types.Prediction{
		ArtifactID:    a.ID,
		Revenue:       est.Revenue,
		RevenueText:   types.FormatMoney(est.Revenue),
		LogRevenue:    est.LogRevenue,
		Baseline:      exp.Baseline,
		Contributions: exp.Contributions,
		DirectorScore: scorePtr(scores.Director),
		CastScore:     scorePtr(scores.Cast),
		UnseenGenres:  unseen,
		ReferenceYear: a.Schema.ReferenceYear,
	}, nil
}

// ReleaseFromRequest converts a prediction request to a release without revenue.
func ReleaseFromRequest(req types.PredictRequest) (model.Release, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.ReleaseDate))
	if err != nil {
		return model.Release{}, fmt.Errorf("%w: release_date %q", ErrInvalidRequest, req.ReleaseDate)
	}
	rel := model.Release{
		ID:          requestID,
		Title:       req.Title,
		ReleaseDate: date,
		Budget:      model.Money{Amount: req.Budget, Year: req.BudgetYear},
		Genres:      req.Genres,
		Runtime:     req.Runtime,
		Collection:  req.Collection,
	}
	for _, id := range req.Cast {
		rel.Cast = append(rel.Cast, model.Person{ID: id})
	}
	for _, id := range req.Directors {
		rel.Directors = append(rel.Directors, model.Person{ID: id})
	}
	return rel, nil
}

func scorePtr(s talent.Score) *float64 {
	v, ok := s.Value()
	if !ok {
		return nil
	}
	return &v
}

// Schema returns the frozen feature schema of the loaded model.
func (s *Service) Schema(_ context.Context) (features.Schema, error) {
	m, err := s.model()
	if err != nil {
		return features.Schema{}, err
	}
	return m.artifact.Schema, nil
}

// Importance returns the global importance computed at training time.
func (s *Service) Importance(_ context.Context) ([]types.Importance, error) {
	m, err := s.model()
	if err != nil {
		return nil, err
	}
	return m.artifact.Importance, nil
}

// Model summarizes the loaded artifact.
func (s *Service) Model(_ context.Context) (types.ModelSummary, error) {
	m, err := s.model()
	if err != nil {
		return types.ModelSummary{}, err
	}
	return Summary(m.artifact), nil
}

// Summary describes a.
func Summary(a *revenue.Artifact) types.ModelSummary {
	ev := a.Evaluation
	return types.ModelSummary{
		ArtifactID:    a.ID,
		CreatedAt:     a.CreatedAt,
		ReferenceYear: a.Schema.ReferenceYear,
		SchemaVersion: a.Schema.Version,
		Fingerprint:   a.Schema.Fingerprint,
		Features:      a.Schema.Width(),
		Trees:         len(a.Ensemble.Trees),
		TrainRows:     ev.TrainRows,
		TestRows:      ev.TestRows,
		R2Log:         ev.R2Log,
		R2:            ev.R2,
		MAE:           ev.MAE,
		RMSE:          ev.RMSE,
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	stats := map[string]any{
		"uptimeSeconds":      int64(s.now().Sub(s.startedAt).Seconds()),
		"predictions":        s.predictions.Load(),
		"predictionFailures": s.failures.Load(),
		"modelLoaded":        false,
	}
	if m := s.current.Load(); m != nil {
		stats["modelLoaded"] = true
		stats["artifactId"] = m.artifact.ID
		stats["loadedAt"] = m.at.UTC().Format(time.RFC3339)
		stats["talentEntries"] = len(m.artifact.Talent)
	}
	return stats
}
