// Package config defines forecaster configuration and its loading hooks.
//
// Conventions:
// - Keys are flat and match the koanf tags below.
// - New() returns a Config with defaults; Load layers a file and env vars on top.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ArtifactPath is where train writes and serve reads the model artifact.
	ArtifactPath string `koanf:"artifact_path"`

	// DatasetPath is the SQLite file holding raw releases and the price index.
	DatasetPath string `koanf:"dataset_path"`

	// PriceIndexSource selects where the price index comes from: "store", "file" or "bls".
	PriceIndexSource string `koanf:"price_index_source"`
	// PriceIndexPath is the CSV file used when PriceIndexSource is "file".
	PriceIndexPath string `koanf:"price_index_path"`
	// BLSSeriesID and BLSAPIKey configure the BLS CPI source.
	BLSSeriesID string `koanf:"bls_series_id"`
	BLSAPIKey   string `koanf:"bls_api_key"`
	BLSBaseURL  string `koanf:"bls_base_url"`
	// BLSStartYear is the first year requested from BLS; the last is ReferenceYear.
	BLSStartYear int `koanf:"bls_start_year"`

	// ReferenceYear is the purchasing-power year every amount is normalized to.
	ReferenceYear int `koanf:"reference_year"`

	// TMDB raw record source.
	TMDBAPIKey        string  `koanf:"tmdb_api_key"`
	TMDBBaseURL       string  `koanf:"tmdb_base_url"`
	TMDBLanguage      string  `koanf:"tmdb_language"`
	TMDBRegion        string  `koanf:"tmdb_region"`
	TMDBRatePerSecond float64 `koanf:"tmdb_rate_per_second"`
	TMDBPagesPerYear  int     `koanf:"tmdb_pages_per_year"`
	TMDBStartYear     int     `koanf:"tmdb_start_year"`
	TMDBEndYear       int     `koanf:"tmdb_end_year"`

	// Cleaning thresholds in nominal dollars; records at or below are dropped.
	MinBudget  float64 `koanf:"min_budget"`
	MinRevenue float64 `koanf:"min_revenue"`

	// MinTrainingSize is the smallest cleaned dataset Fit accepts.
	MinTrainingSize int `koanf:"min_training_size"`

	// Talent scoring policy. TalentWindow 0 means all prior history.
	TalentWindow     int    `koanf:"talent_window"`
	TalentSettleDays int    `koanf:"talent_settle_days"`
	CastPolicy       string `koanf:"cast_policy"`
	CastTopN         int    `koanf:"cast_top_n"`

	// Gradient boosting hyperparameters.
	ModelTrees          int     `koanf:"model_trees"`
	ModelLearningRate   float64 `koanf:"model_learning_rate"`
	ModelMaxDepth       int     `koanf:"model_max_depth"`
	ModelSubsample      float64 `koanf:"model_subsample"`
	ModelColsample      float64 `koanf:"model_colsample"`
	ModelMinSamplesLeaf int     `koanf:"model_min_samples_leaf"`
	ModelLambda         float64 `koanf:"model_lambda"`
	ModelSeed           int64   `koanf:"model_seed"`
	ModelTestFraction   float64 `koanf:"model_test_fraction"`

	// ImportanceSample caps the rows used for the global importance summary (0 = all).
	ImportanceSample int `koanf:"importance_sample"`

	// WorkerCount sets the number of pool workers for per-person scoring and fetches.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the pool's job queue.
	QueueSize int `koanf:"queue_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		ArtifactPath:     "boxoffice-model.json",
		DatasetPath:      "boxoffice.db",
		PriceIndexSource: "store",
		BLSSeriesID:      "CUUR0000SA0",
		BLSBaseURL:       "https://api.bls.gov/publicAPI/v2",
		BLSStartYear:     1990,
		ReferenceYear:    2024,

		TMDBBaseURL:       "https://api.themoviedb.org/3",
		TMDBLanguage:      "en-US",
		TMDBRegion:        "US",
		TMDBRatePerSecond: 4,
		TMDBPagesPerYear:  5,
		TMDBStartYear:     2000,
		TMDBEndYear:       2024,

		MinBudget:       10_000,
		MinRevenue:      10_000,
		MinTrainingSize: 300,

		TalentWindow:     0,
		TalentSettleDays: 0,
		CastPolicy:       "lead",
		CastTopN:         3,

		ModelTrees:          300,
		ModelLearningRate:   0.05,
		ModelMaxDepth:       5,
		ModelSubsample:      0.8,
		ModelColsample:      0.8,
		ModelMinSamplesLeaf: 1,
		ModelLambda:         1,
		ModelSeed:           42,
		ModelTestFraction:   0.2,

		ImportanceSample: 0,

		WorkerCount: runtime.NumCPU(),
		QueueSize:   10_000,
	}
}
