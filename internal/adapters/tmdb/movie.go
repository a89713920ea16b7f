package tmdb

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/boxoffice/internal/domain/model"
)

const directorJob = "Director"

type movieDetails struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Budget      float64 `json:"budget"`
	Revenue     float64 `json:"revenue"`
	Runtime     float64 `json:"runtime"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Collection *struct {
		Name string `json:"name"`
	} `json:"belongs_to_collection"`
	Credits struct {
		Cast []struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			Order int    `json:"order"`
		} `json:"cast"`
		Crew []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

// Movie fetches one movie with its credits.
func (c *Client) Movie(ctx context.Context, id int64) (model.Release, error) {
	var d movieDetails
	params := url.Values{"append_to_response": {"credits"}}
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), params, &d); err != nil {
		return model.Release{}, err
	}
	return d.release(), nil
}

// release maps TMDB details onto a raw record. TMDB reports unknown money
// as zero; a zero revenue becomes "unknown", a zero budget is kept so the
// cleaner can reject it with a reason.
func (d *movieDetails) release() model.Release {
	r := model.Release{
		ID:      strconv.FormatInt(d.ID, 10),
		Title:   d.Title,
		Budget:  model.Money{Amount: d.Budget},
		Runtime: d.Runtime,
		Post: model.PostRelease{
			Popularity:  d.Popularity,
			VoteAverage: d.VoteAverage,
			VoteCount:   d.VoteCount,
		},
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(d.ReleaseDate)); err == nil {
		r.ReleaseDate = t
	}
	if d.Revenue > 0 {
		r.Revenue = &model.Money{Amount: d.Revenue}
	}
	for _, g := range d.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			r.Genres = append(r.Genres, name)
		}
	}
	if d.Collection != nil {
		r.Collection = d.Collection.Name
	}

	cast := d.Credits.Cast
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	seen := map[int64]bool{}
	for _, p := range cast {
		if !seen[p.ID] {
			seen[p.ID] = true
			r.Cast = append(r.Cast, model.Person{ID: strconv.FormatInt(p.ID, 10), Name: p.Name})
		}
	}
	seen = map[int64]bool{}
	for _, p := range d.Credits.Crew {
		if p.Job == directorJob && !seen[p.ID] {
			seen[p.ID] = true
			r.Directors = append(r.Directors, model.Person{ID: strconv.FormatInt(p.ID, 10), Name: p.Name})
		}
	}
	return r
}
