package talent

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/boxoffice/internal/domain/model"
)

// Runner executes independent tasks and returns the first error.
type Runner interface {
	RunAll(ctx context.Context, tasks []func(ctx context.Context) error) error
}

// SequentialRunner runs tasks one after another on the caller's goroutine.
type SequentialRunner struct{}

// RunAll implements Runner.
func (SequentialRunner) RunAll(ctx context.Context, tasks []func(ctx context.Context) error) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}

type personKey struct {
	role Role
	id   string
}

// ScoreCatalog computes the director and cast score of every release. Each
// person's history is an independent unit run on runner; results are keyed by
// release ID, so the outcome does not depend on input order or scheduling.
func ScoreCatalog(ctx context.Context, releases []model.NormalizedRelease, p Policy, runner Runner) (map[string]ReleaseScores, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = SequentialRunner{}
	}

	credits := map[personKey][]Credit{}
	for _, r := range releases {
		c := Credit{ReleaseID: r.ID, Date: r.ReleaseDate, Revenue: r.RevenueAdj}
		for _, role := range []Role{RoleDirector, RoleCast} {
			for _, id := range Members(r.Release, role, p) {
				k := personKey{role: role, id: id}
				credits[k] = append(credits[k], c)
			}
		}
	}

	keys := make([]personKey, 0, len(credits))
	for k := range credits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].role != keys[j].role {
			return keys[i].role < keys[j].role
		}
		return keys[i].id < keys[j].id
	})

	agg := Aggregator{Policy: p}
	results := make([][]Scored, len(keys))
	tasks := make([]func(ctx context.Context) error, len(keys))
	for i, k := range keys {
		tasks[i] = func(_ context.Context) error {
			cs := credits[k]
			SortCredits(cs)
			scored, err := agg.Scores(k.id, cs)
			if err != nil {
				return fmt.Errorf("%s %s: %w", k.role, k.id, err)
			}
			results[i] = scored
			return nil
		}
	}
	if err := runner.RunAll(ctx, tasks); err != nil {
		return nil, err
	}

	byPerson := make(map[personKey]map[string]Score, len(keys))
	for i, k := range keys {
		m := make(map[string]Score, len(results[i]))
		for _, s := range results[i] {
			m[s.ReleaseID] = s.Score
		}
		byPerson[k] = m
	}

	out := make(map[string]ReleaseScores, len(releases))
	for _, r := range releases {
		var directors, cast []Score
		for _, id := range Members(r.Release, RoleDirector, p) {
			directors = append(directors, byPerson[personKey{RoleDirector, id}][r.ID])
		}
		for _, id := range Members(r.Release, RoleCast, p) {
			cast = append(cast, byPerson[personKey{RoleCast, id}][r.ID])
		}
		out[r.ID] = ReleaseScores{Director: Mean(directors...), Cast: combineCast(p, cast)}
	}
	return out, nil
}
