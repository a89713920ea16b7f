// Package features turns normalized releases into fixed-width feature vectors.
package features

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/talent"
)

// SchemaVersion is bumped whenever field layout rules change.
const SchemaVersion = 1

// Fixed field names.
const (
	FieldBudgetAdj          = "budget_adj"
	FieldRuntime            = "runtime"
	FieldIsFranchise        = "is_franchise"
	FieldDirectorHasHistory = "director_has_history"
	FieldDirectorScore      = "director_score"
	FieldCastHasHistory     = "cast_has_history"
	FieldCastScore          = "cast_score"

	genrePrefix  = "genre_"
	seasonPrefix = "season_"
)

// Kind is the value domain of a field.
type Kind string

// Field kinds.
const (
	KindNumeric   Kind = "numeric"
	KindIndicator Kind = "indicator"
)

// Availability says when a field's value becomes known.
type Availability string

// Availabilities.
const (
	PreRelease  Availability = "pre_release"
	PostRelease Availability = "post_release"
)

// Field describes one vector position.
type Field struct {
	Name         string       `json:"name"`
	Kind         Kind         `json:"kind"`
	Group        string       `json:"group,omitempty"`
	Availability Availability `json:"availability"`
}

// Schema is the frozen, versioned description of a feature vector. It is
// created with the model and never changes afterwards.
type Schema struct {
	Version       int           `json:"version"`
	Fields        []Field       `json:"fields"`
	Genres        []string      `json:"genres"`
	Policy        talent.Policy `json:"talent_policy"`
	ScoreFill     float64       `json:"score_fill"`
	ReferenceYear int           `json:"reference_year"`
	Fingerprint   string        `json:"fingerprint"`
}

// Vocabulary returns the sorted unique genre tags of releases.
func Vocabulary(releases []model.NormalizedRelease) []string {
	seen := map[string]struct{}{}
	for _, r := range releases {
		for _, g := range r.Genres {
			if g = strings.TrimSpace(g); g != "" {
				seen[g] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// ScoreFill is the mean adjusted revenue over releases with known revenue.
// It stands in for a missing talent score.
func ScoreFill(releases []model.NormalizedRelease) float64 {
	var sum float64
	var n int
	for _, r := range releases {
		if r.RevenueAdj != nil {
			sum += *r.RevenueAdj
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// GenreField returns the feature name for a genre tag.
func GenreField(tag string) string {
	var b strings.Builder
	b.WriteString(genrePrefix)
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(tag)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	return b.String()
}

// SeasonField returns the feature name for a season bucket.
func SeasonField(s Season) string { return seasonPrefix + string(s) }

// BuildSchema lays out the fields for a genre vocabulary and talent policy.
func BuildSchema(genres []string, policy talent.Policy, scoreFill float64, referenceYear int) (Schema, error) {
	if err := policy.Validate(); err != nil {
		return Schema{}, err
	}
	if math.IsNaN(scoreFill) || math.IsInf(scoreFill, 0) {
		return Schema{}, fmt.Errorf("%w: score fill %v", ErrInvalidSchema, scoreFill)
	}
	vocab := append([]string(nil), genres...)
	sort.Strings(vocab)

	fields := []Field{
		{Name: FieldBudgetAdj, Kind: KindNumeric, Availability: PreRelease},
		{Name: FieldRuntime, Kind: KindNumeric, Availability: PreRelease},
		{Name: FieldIsFranchise, Kind: KindIndicator, Availability: PreRelease},
	}
	seen := map[string]string{}
	for i, g := range vocab {
		if i > 0 && vocab[i-1] == g {
			return Schema{}, fmt.Errorf("%w: duplicate genre %q", ErrInvalidSchema, g)
		}
		name := GenreField(g)
		if prev, dup := seen[name]; dup {
			return Schema{}, fmt.Errorf("%w: genres %q and %q both map to %s", ErrInvalidSchema, prev, g, name)
		}
		seen[name] = g
		fields = append(fields, Field{Name: name, Kind: KindIndicator, Group: "genre", Availability: PreRelease})
	}
	for _, s := range Seasons {
		fields = append(fields, Field{Name: SeasonField(s), Kind: KindIndicator, Group: "season", Availability: PreRelease})
	}
	fields = append(fields,
		Field{Name: FieldDirectorHasHistory, Kind: KindIndicator, Availability: PreRelease},
		Field{Name: FieldDirectorScore, Kind: KindNumeric, Availability: PreRelease},
		Field{Name: FieldCastHasHistory, Kind: KindIndicator, Availability: PreRelease},
		Field{Name: FieldCastScore, Kind: KindNumeric, Availability: PreRelease},
	)

	s := Schema{
		Version:       SchemaVersion,
		Fields:        fields,
		Genres:        vocab,
		Policy:        policy,
		ScoreFill:     scoreFill,
		ReferenceYear: referenceYear,
	}
	s.Fingerprint = s.ComputeFingerprint()
	return s, nil
}

// Names returns field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Width is the vector length.
func (s Schema) Width() int { return len(s.Fields) }

// Index returns the position of name.
func (s Schema) Index(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// PostReleaseFields lists fields whose values are not known before release.
func (s Schema) PostReleaseFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Availability != PreRelease {
			out = append(out, f.Name)
		}
	}
	return out
}

// ComputeFingerprint hashes everything that changes what a vector means.
func (s Schema) ComputeFingerprint() string {
	d := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = d.WriteString(p)
			_, _ = d.Write([]byte{0})
		}
	}
	write(strconv.Itoa(s.Version))
	for _, f := range s.Fields {
		write(f.Name, string(f.Kind), f.Group, string(f.Availability))
	}
	write(s.Genres...)
	write(strconv.Itoa(s.Policy.Window), strconv.Itoa(s.Policy.SettleDays), string(s.Policy.Cast), strconv.Itoa(s.Policy.CastTopN))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s.ScoreFill))
	_, _ = d.Write(buf[:])
	write(strconv.Itoa(s.ReferenceYear))
	return strconv.FormatUint(d.Sum64(), 16)
}

// Verify checks that the stored fingerprint still matches the schema.
func (s Schema) Verify() error {
	if got := s.ComputeFingerprint(); got != s.Fingerprint {
		return fmt.Errorf("%w: fingerprint %s does not match %s", ErrInvalidSchema, s.Fingerprint, got)
	}
	return nil
}

// Validate checks v against the schema: names, order, finiteness, indicator
// values and the season one-hot group.
func (s Schema) Validate(v Vector) error {
	if len(v.Names) != len(v.Values) {
		return mismatch("", "%d names for %d values", len(v.Names), len(v.Values))
	}
	for i, f := range s.Fields {
		if i >= len(v.Names) {
			return mismatch(f.Name, "missing")
		}
		if v.Names[i] != f.Name {
			if !containsName(v.Names, f.Name) {
				return mismatch(f.Name, "missing")
			}
			if _, ok := s.Index(v.Names[i]); !ok {
				return mismatch(v.Names[i], "not in schema")
			}
			return mismatch(f.Name, "out of order at position %d", i)
		}
	}
	if len(v.Names) > len(s.Fields) {
		return mismatch(v.Names[len(s.Fields)], "not in schema")
	}

	hot := 0
	for i, f := range s.Fields {
		x := v.Values[i]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return mismatch(f.Name, "non-finite value %v", x)
		}
		if f.Kind == KindIndicator && x != 0 && x != 1 {
			return mismatch(f.Name, "indicator must be 0 or 1, got %v", x)
		}
		if f.Group == "season" && x == 1 {
			hot++
		}
	}
	if hot != 1 {
		return mismatch("season", "expected exactly one season, got %d", hot)
	}
	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
