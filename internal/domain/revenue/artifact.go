package revenue

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/talent"
	"github.com/okian/boxoffice/internal/domain/types"
)

// FormatVersion is the artifact encoding version.
const FormatVersion = 1

// Artifact is a trained model together with everything inference needs:
// the frozen schema, the talent history and the price index used at
// training time. It is not modified once saved.
type Artifact struct {
	ID            string             `json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	FormatVersion int                `json:"format_version"`
	Schema        features.Schema    `json:"schema"`
	Ensemble      gbm.Ensemble       `json:"ensemble"`
	Params        gbm.Params         `json:"params"`
	TestFraction  float64            `json:"test_fraction"`
	Evaluation    Evaluation         `json:"evaluation"`
	Importance    []types.Importance `json:"importance"`
	Talent        []talent.Entry     `json:"talent"`
	PriceIndex    []currency.Point   `json:"price_index"`
}

// Validate checks that a decoded artifact is internally consistent.
func (a *Artifact) Validate() error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrInvalidArtifact, a.FormatVersion, FormatVersion)
	}
	if err := a.Schema.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := a.Ensemble.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if a.Ensemble.Features != a.Schema.Width() {
		return fmt.Errorf("%w: ensemble expects %d features, schema has %d", ErrInvalidArtifact, a.Ensemble.Features, a.Schema.Width())
	}
	if len(a.PriceIndex) == 0 {
		return fmt.Errorf("%w: no price index", ErrInvalidArtifact)
	}
	return nil
}

// Normalizer rebuilds the frozen price index.
func (a *Artifact) Normalizer() (*currency.Normalizer, error) {
	idx, err := currency.NewIndex(a.PriceIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	return currency.NewNormalizer(idx), nil
}

// Book rebuilds the frozen talent history.
func (a *Artifact) Book() *talent.Book {
	return talent.NewBookFromEntries(a.Schema.Policy, a.Talent)
}

// Encode writes a as JSON. Floats use the shortest representation that
// parses back to the same value, so a decoded artifact predicts identically.
func Encode(w io.Writer, a *Artifact) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// Decode reads and validates an artifact.
func Decode(r io.Reader) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
