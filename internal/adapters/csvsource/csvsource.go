// Package csvsource reads and writes raw release tables in the TMDB export
// layout: one row per movie, list columns holding JSON arrays.
package csvsource

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/boxoffice/internal/domain/dedupe"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/pkg/logger"
	"github.com/okian/boxoffice/pkg/metrics"
)

const (
	dateLayout  = "2006-01-02"
	directorJob = "Director"
	sourceName  = "csv"
)

// Columns is the header written by Writer. Reader accepts any order and
// ignores extra columns.
var Columns = []string{
	"id", "title", "release_date", "budget", "revenue", "runtime",
	"popularity", "vote_average", "vote_count",
	"genres", "belongs_to_collection", "cast", "crew",
}

var required = []string{"id", "release_date", "budget"}

// Sentinel kinds for CSV import.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrBadRow        = errors.New("bad row")
)

// RowError locates a row that could not be decoded.
type RowError struct {
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d column %s: %v", e.Line, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Is matches ErrBadRow.
func (e *RowError) Is(target error) bool { return target == ErrBadRow }

// flexID is a JSON id that may be a number (TMDB) or a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

type namedJSON struct {
	ID   flexID `json:"id,omitempty"`
	Name string `json:"name"`
}

type castJSON struct {
	ID    flexID `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type crewJSON struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job"`
}

// Reader decodes releases from a CSV stream.
type Reader struct {
	seen   dedupe.Deduper
	strict bool
	logger logger.Logger
}

// Option applies a configuration option to the Reader.
type Option func(*Reader)

// WithDeduper shares a deduper so IDs seen elsewhere are skipped.
func WithDeduper(d dedupe.Deduper) Option {
	return func(r *Reader) {
		if d != nil {
			r.seen = d
		}
	}
}

// WithStrict fails the whole read on the first undecodable row instead of
// skipping it.
func WithStrict(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

// NewReader creates a reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{seen: dedupe.NewInMemoryDeduper()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Get().Named("csv-source")
	return r
}

// Read returns the releases in src in file order. Repeated IDs keep their
// first occurrence.
func (r *Reader) Read(ctx context.Context, src io.Reader) ([]model.Release, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var (
		out     []model.Release
		skipped int
		dupes   int
		line    = 1
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rel, err := decode(line, cols, rec)
		if err != nil {
			if r.strict {
				return nil, err
			}
			skipped++
			metrics.RecordRecordRejected("bad_row")
			r.logger.Warn(ctx, "skipping row", logger.Int("line", line), logger.Error(err))
			continue
		}
		if rel.ID != "" && r.seen.SeenAndRecord(ctx, rel.ID) {
			dupes++
			metrics.RecordRecordDuplicate()
			continue
		}
		out = append(out, rel)
	}

	metrics.RecordRecordsIngested(sourceName, len(out))
	r.logger.Info(ctx, "read csv releases",
		logger.Int("rows", line-1), logger.Int("releases", len(out)),
		logger.Int("duplicates", dupes), logger.Int("skipped", skipped))
	return out, nil
}

func decode(line int, cols map[string]int, rec []string) (model.Release, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	num := func(name string) (float64, error) {
		s := get(name)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &RowError{Line: line, Column: name, Err: err}
		}
		return v, nil
	}

	var r model.Release
	r.ID = normalizeID(get("id"))
	r.Title = get("title")
	if s := get("release_date"); s != "" {
		// unparseable dates stay zero and are rejected by the cleaner
		if t, err := time.Parse(dateLayout, s); err == nil {
			r.ReleaseDate = t
		}
	}

	var err error
	if r.Budget.Amount, err = num("budget"); err != nil {
		return r, err
	}
	revenue, err := num("revenue")
	if err != nil {
		return r, err
	}
	if revenue > 0 {
		r.Revenue = &model.Money{Amount: revenue}
	}
	if r.Runtime, err = num("runtime"); err != nil {
		return r, err
	}
	if r.Post.Popularity, err = num("popularity"); err != nil {
		return r, err
	}
	if r.Post.VoteAverage, err = num("vote_average"); err != nil {
		return r, err
	}
	votes, err := num("vote_count")
	if err != nil {
		return r, err
	}
	r.Post.VoteCount = int(votes)

	var genres []namedJSON
	if err := jsonColumn(line, "genres", get("genres"), &genres); err != nil {
		return r, err
	}
	for _, g := range genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			r.Genres = append(r.Genres, name)
		}
	}

	var coll *namedJSON
	if err := jsonColumn(line, "belongs_to_collection", get("belongs_to_collection"), &coll); err != nil {
		return r, err
	}
	if coll != nil {
		r.Collection = coll.Name
	}

	var cast []castJSON
	if err := jsonColumn(line, "cast", get("cast"), &cast); err != nil {
		return r, err
	}
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	seen := map[string]bool{}
	for _, p := range cast {
		id := string(p.ID)
		if id != "" && !seen[id] {
			seen[id] = true
			r.Cast = append(r.Cast, model.Person{ID: id, Name: p.Name})
		}
	}

	var crew []crewJSON
	if err := jsonColumn(line, "crew", get("crew"), &crew); err != nil {
		return r, err
	}
	seen = map[string]bool{}
	for _, p := range crew {
		id := string(p.ID)
		if p.Job == directorJob && id != "" && !seen[id] {
			seen[id] = true
			r.Directors = append(r.Directors, model.Person{ID: id, Name: p.Name})
		}
	}
	return r, nil
}

// jsonColumn decodes a list column. Empty cells and the literals "null" and
// "nan" decode to the zero value.
func jsonColumn(line int, name, cell string, into any) error {
	switch strings.ToLower(cell) {
	case "", "null", "nan", "none":
		return nil
	}
	if err := json.Unmarshal([]byte(cell), into); err != nil {
		return &RowError{Line: line, Column: name, Err: err}
	}
	return nil
}

// normalizeID strips a float suffix spreadsheets add to integer IDs.
func normalizeID(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// Write encodes releases in the Columns layout.
func Write(w io.Writer, releases []model.Release) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range releases {
		row, err := encode(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.ID, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encode(r model.Release) ([]string, error) {
	date := ""
	if !r.ReleaseDate.IsZero() {
		date = r.ReleaseDate.Format(dateLayout)
	}
	revenue := "0"
	if r.Revenue != nil {
		revenue = formatFloat(r.Revenue.Amount)
	}

	genres := make([]namedJSON, 0, len(r.Genres))
	for _, g := range r.Genres {
		genres = append(genres, namedJSON{Name: g})
	}
	var coll *namedJSON
	if r.IsFranchise() {
		coll = &namedJSON{Name: r.Collection}
	}
	cast := make([]castJSON, 0, len(r.Cast))
	for i, p := range r.Cast {
		cast = append(cast, castJSON{ID: flexID(p.ID), Name: p.Name, Order: i})
	}
	crew := make([]crewJSON, 0, len(r.Directors))
	for _, p := range r.Directors {
		crew = append(crew, crewJSON{ID: flexID(p.ID), Name: p.Name, Job: directorJob})
	}

	cells := []any{genres, coll, cast, crew}
	encoded := make([]string, len(cells))
	for i, c := range cells {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		encoded[i] = string(b)
	}

	return []string{
		r.ID, r.Title, date,
		formatFloat(r.Budget.Amount), revenue, formatFloat(r.Runtime),
		formatFloat(r.Post.Popularity), formatFloat(r.Post.VoteAverage), strconv.Itoa(r.Post.VoteCount),
		encoded[0], encoded[1], encoded[2], encoded[3],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
