// Package types contains common types used across the application
package types

import (
	"fmt"
	"math"
	"time"
)

// Importance is a feature's mean absolute contribution over a dataset.
type Importance struct {
	Feature string  `json:"feature"`
	MeanAbs float64 `json:"mean_abs"`
}

// Contribution is one feature's additive share of a prediction, on the log scale.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Prediction is the answer to a prediction request.
type Prediction struct {
	ArtifactID    string         `json:"artifact_id"`
	Revenue       float64        `json:"revenue"`
	RevenueText   string         `json:"revenue_text"`
	LogRevenue    float64        `json:"log_revenue"`
	Baseline      float64        `json:"baseline"`
	Contributions []Contribution `json:"contributions"`
	DirectorScore *float64       `json:"director_score"`
	CastScore     *float64       `json:"cast_score"`
	UnseenGenres  []string       `json:"unseen_genres,omitempty"`
	ReferenceYear int            `json:"reference_year"`
}

// PredictRequest carries the pre-release facts of a film. Person fields hold
// opaque person IDs; cast is in billing order.
type PredictRequest struct {
	Title       string   `json:"title" validate:"max=300"`
	ReleaseDate string   `json:"release_date" validate:"required,datetime=2006-01-02"`
	Budget      float64  `json:"budget" validate:"gt=0"`
	BudgetYear  int      `json:"budget_year" validate:"omitempty,gte=1870,lte=2200"`
	Genres      []string `json:"genres" validate:"required,min=1,dive,required"`
	Runtime     float64  `json:"runtime" validate:"gt=0,lte=1000"`
	Cast        []string `json:"cast" validate:"dive,required"`
	Directors   []string `json:"directors" validate:"required,min=1,dive,required"`
	Collection  string   `json:"collection" validate:"max=300"`
}

// FormatMoney renders a dollar amount as $X.XXB, $X.XXM or $X.
func FormatMoney(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// ModelSummary describes the loaded model artifact.
type ModelSummary struct {
	ArtifactID    string    `json:"artifact_id"`
	CreatedAt     time.Time `json:"created_at"`
	ReferenceYear int       `json:"reference_year"`
	SchemaVersion int       `json:"schema_version"`
	Fingerprint   string    `json:"fingerprint"`
	Features      int       `json:"features"`
	Trees         int       `json:"trees"`
	TrainRows     int       `json:"train_rows"`
	TestRows      int       `json:"test_rows"`
	R2Log         float64   `json:"r2_log"`
	R2            float64   `json:"r2"`
	MAE           float64   `json:"mae"`
	RMSE          float64   `json:"rmse"`
}
