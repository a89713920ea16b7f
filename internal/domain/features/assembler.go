package features

import (
	"strings"

	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/talent"
)

// Vector is a feature vector in schema order.
type Vector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// Get returns the value of name.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Assembler builds vectors for one frozen schema. It holds no mutable state
// and is safe for concurrent use.
type Assembler struct {
	schema   Schema
	names    []string
	genreIdx map[string]int
	fixed    map[string]int
}

// NewAssembler prepares the lookups for s.
func NewAssembler(s Schema) (*Assembler, error) {
	if err := s.Verify(); err != nil {
		return nil, err
	}
	a := &Assembler{
		schema:   s,
		names:    s.Names(),
		genreIdx: make(map[string]int, len(s.Genres)),
		fixed:    make(map[string]int, len(s.Fields)),
	}
	for i, f := range s.Fields {
		a.fixed[f.Name] = i
	}
	for _, g := range s.Genres {
		a.genreIdx[g] = a.fixed[GenreField(g)]
	}
	return a, nil
}

// Schema returns the frozen schema.
func (a *Assembler) Schema() Schema { return a.schema }

// Assemble builds the vector for rel. Genres outside the vocabulary leave
// every genre indicator untouched; see UnseenGenres. Missing talent scores
// become has_history=0 and score=ScoreFill.
func (a *Assembler) Assemble(rel model.NormalizedRelease, director, cast talent.Score) (Vector, error) {
	values := make([]float64, len(a.names))
	values[a.fixed[FieldBudgetAdj]] = rel.BudgetAdj
	values[a.fixed[FieldRuntime]] = rel.Runtime
	if rel.IsFranchise() {
		values[a.fixed[FieldIsFranchise]] = 1
	}
	for _, g := range rel.Genres {
		if i, ok := a.genreIdx[strings.TrimSpace(g)]; ok {
			values[i] = 1
		}
	}
	values[a.fixed[SeasonField(SeasonOf(rel.ReleaseDate.Month()))]] = 1

	a.setScore(values, FieldDirectorHasHistory, FieldDirectorScore, director)
	a.setScore(values, FieldCastHasHistory, FieldCastScore, cast)

	v := Vector{Names: a.names, Values: values}
	if err := a.schema.Validate(v); err != nil {
		return Vector{}, err
	}
	return v, nil
}

func (a *Assembler) setScore(values []float64, flag, score string, s talent.Score) {
	if v, ok := s.Value(); ok {
		values[a.fixed[flag]] = 1
		values[a.fixed[score]] = v
		return
	}
	values[a.fixed[score]] = a.schema.ScoreFill
}

// UnseenGenres returns the tags of genres not in the vocabulary.
func (a *Assembler) UnseenGenres(genres []string) []string {
	var out []string
	for _, g := range genres {
		if _, ok := a.genreIdx[strings.TrimSpace(g)]; !ok {
			out = append(out, g)
		}
	}
	return out
}
