package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. BOXOFFICE_ADDR.
const EnvPrefix = "BOXOFFICE_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BOXOFFICE_CONFIG is set
//  3. env (prefix BOXOFFICE_)
func Load(ctx context.Context) (*Config, error) {
	return LoadFile(ctx, os.Getenv(EnvPrefix+"CONFIG"))
}

// LoadFile is Load with an explicit YAML file; an empty path skips the file layer.
func LoadFile(_ context.Context, path string) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like BOXOFFICE_MODEL_TREES -> model_trees (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.ReferenceYear <= 0:
		return invalid("reference_year must be positive")
	case c.MinTrainingSize < 2:
		return invalid("min_training_size must be at least 2")
	case c.TalentWindow < 0:
		return invalid("talent_window must not be negative")
	case c.TalentSettleDays < 0:
		return invalid("talent_settle_days must not be negative")
	case c.CastPolicy != "lead" && c.CastPolicy != "mean_top_n":
		return invalid("cast_policy must be lead or mean_top_n, got %q", c.CastPolicy)
	case c.CastTopN < 1:
		return invalid("cast_top_n must be at least 1")
	case c.ModelTrees < 1:
		return invalid("model_trees must be at least 1")
	case c.ModelLearningRate <= 0 || c.ModelLearningRate > 1:
		return invalid("model_learning_rate must be in (0, 1]")
	case c.ModelMaxDepth < 1:
		return invalid("model_max_depth must be at least 1")
	case c.ModelSubsample <= 0 || c.ModelSubsample > 1:
		return invalid("model_subsample must be in (0, 1]")
	case c.ModelColsample <= 0 || c.ModelColsample > 1:
		return invalid("model_colsample must be in (0, 1]")
	case c.ModelMinSamplesLeaf < 1:
		return invalid("model_min_samples_leaf must be at least 1")
	case c.ModelLambda < 0:
		return invalid("model_lambda must not be negative")
	case c.ModelTestFraction <= 0 || c.ModelTestFraction >= 1:
		return invalid("model_test_fraction must be in (0, 1)")
	case c.WorkerCount < 1:
		return invalid("worker_count must be at least 1")
	case c.QueueSize < 1:
		return invalid("queue_size must be at least 1")
	case c.BLSStartYear < 1913 || c.BLSStartYear > c.ReferenceYear:
		return invalid("bls_start_year must be in 1913..reference_year, got %d", c.BLSStartYear)
	}
	switch c.PriceIndexSource {
	case "store", "bls":
	case "file":
		if c.PriceIndexPath == "" {
			return invalid("price_index_path is required when price_index_source is file")
		}
	default:
		return invalid("price_index_source must be store, file or bls, got %q", c.PriceIndexSource)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
