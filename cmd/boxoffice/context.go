package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/okian/boxoffice/internal/adapters/artifact"
	"github.com/okian/boxoffice/internal/adapters/mq/worker"
	"github.com/okian/boxoffice/internal/adapters/priceindex"
	"github.com/okian/boxoffice/internal/adapters/repository"
	service "github.com/okian/boxoffice/internal/app"
	"github.com/okian/boxoffice/internal/config"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/talent"
	"github.com/okian/boxoffice/pkg/logger"
)

type globalFlags struct {
	config   string
	dataset  string
	artifact string
	logLevel string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads configuration once, applies flag overrides and points
// logs at stderr so stdout carries only command output.
func (c *commandContext) ensureConfig(logOut io.Writer) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadFile(context.Background(), strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.dataset != "" {
			cfg.DatasetPath = c.flags.dataset
		}
		if c.flags.artifact != "" {
			cfg.ArtifactPath = c.flags.artifact
		}
		if c.flags.logLevel != "" {
			cfg.LogLevel = c.flags.logLevel
		}
		if err := logger.Init(logger.WithWriter(logOut), logger.WithJSON(cfg.LogJSON)); err != nil {
			c.configErr = err
			return
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			c.configErr = fmt.Errorf("log level: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) cfg() *config.Config {
	return c.config
}

// withStore opens the dataset for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*repository.SQLiteStore) error) error {
	store, err := repository.Open(ctx, c.config.DatasetPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withPool runs fn with a started worker pool and drains it afterwards.
func (c *commandContext) withPool(ctx context.Context, fn func(*worker.Pool) error) error {
	pool := worker.NewPool(c.config.WorkerCount, c.config.QueueSize)
	pool.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), poolShutdownTimeout)
		defer cancel()
		_ = pool.Shutdown(shutdownCtx)
	}()
	return fn(pool)
}

func (c *commandContext) artifactStore() *artifact.FileStore {
	return artifact.NewFileStore(c.config.ArtifactPath)
}

// priceSource returns the configured price index source. The dataset is
// only consulted for the "store" source.
func (c *commandContext) priceSource(store priceindex.Store) priceindex.Source {
	cfg := c.config
	switch cfg.PriceIndexSource {
	case "file":
		return priceindex.NewCached(priceindex.FileSource{Path: cfg.PriceIndexPath})
	case "bls":
		return priceindex.NewCached(c.blsSource(cfg.BLSStartYear, cfg.ReferenceYear))
	default:
		return priceindex.NewCached(priceindex.StoreSource{Store: store})
	}
}

func (c *commandContext) blsSource(from, to int) *priceindex.BLSSource {
	cfg := c.config
	return priceindex.NewBLSSource(from, to,
		priceindex.WithBLSBaseURL(cfg.BLSBaseURL),
		priceindex.WithSeries(cfg.BLSSeriesID),
		priceindex.WithAPIKey(cfg.BLSAPIKey),
	)
}

// loadedService returns a service serving the stored artifact.
func (c *commandContext) loadedService(ctx context.Context) (*service.Service, error) {
	svc := service.New()
	if err := svc.LoadFrom(ctx, c.artifactStore()); err != nil {
		return nil, err
	}
	return svc, nil
}

// trainConfig maps configuration onto the training pipeline.
func trainConfig(cfg *config.Config) service.TrainConfig {
	return service.TrainConfig{
		ReferenceYear: cfg.ReferenceYear,
		Clean: model.CleanRules{
			MinBudget:      cfg.MinBudget,
			MinRevenue:     cfg.MinRevenue,
			RequireRevenue: true,
		},
		Policy: talent.Policy{
			Window:     cfg.TalentWindow,
			SettleDays: cfg.TalentSettleDays,
			Cast:       talent.CastPolicy(cfg.CastPolicy),
			CastTopN:   cfg.CastTopN,
		},
		Params: gbm.Params{
			Trees:          cfg.ModelTrees,
			LearningRate:   cfg.ModelLearningRate,
			MaxDepth:       cfg.ModelMaxDepth,
			MinSamplesLeaf: cfg.ModelMinSamplesLeaf,
			Lambda:         cfg.ModelLambda,
			Subsample:      cfg.ModelSubsample,
			Colsample:      cfg.ModelColsample,
			Seed:           cfg.ModelSeed,
		},
		TestFraction:     cfg.ModelTestFraction,
		MinTrainingSize:  cfg.MinTrainingSize,
		ImportanceSample: cfg.ImportanceSample,
	}
}
