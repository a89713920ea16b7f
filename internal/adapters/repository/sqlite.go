package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/pkg/metrics"
)

const (
	dateLayout          = "2006-01-02"
	defaultQueryTimeout = 30 * time.Second

	roleCast     = "cast"
	roleDirector = "director"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db      *sqlx.DB
	path    string
	timeout time.Duration
	now     func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

type releaseRow struct {
	ID          string          `db:"id"`
	Title       string          `db:"title"`
	ReleaseDate string          `db:"release_date"`
	Budget      float64         `db:"budget"`
	BudgetYear  int             `db:"budget_year"`
	Revenue     sql.NullFloat64 `db:"revenue"`
	RevenueYear int             `db:"revenue_year"`
	Genres      string          `db:"genres"`
	Runtime     float64         `db:"runtime"`
	Collection  string          `db:"collection"`
	Popularity  float64         `db:"popularity"`
	VoteAverage float64         `db:"vote_average"`
	VoteCount   int             `db:"vote_count"`
	UpdatedAt   string          `db:"updated_at"`
}

type creditRow struct {
	ReleaseID string `db:"release_id"`
	Role      string `db:"role"`
	Position  int    `db:"position"`
	PersonID  string `db:"person_id"`
	Name      string `db:"name"`
}

// Open opens or creates the dataset at path and applies pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; SQLite serialises writes anyway
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: path, timeout: defaultQueryTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// observe times one store operation.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordRepositoryQueryLatency(op, float64(time.Since(start).Milliseconds()))
	}
}

// UpsertReleases implements Store. The batch is written in one transaction.
func (s *SQLiteStore) UpsertReleases(ctx context.Context, releases []model.Release) (UpsertResult, error) {
	defer observe("upsert_releases")()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res UpsertResult
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := s.now().UTC().Format(time.RFC3339Nano)
	for i := range releases {
		r := &releases[i]
		if r.ID == "" {
			return UpsertResult{}, fmt.Errorf("%w: release at %d has no id", ErrInvalidRow, i)
		}
		row, err := toRow(r, stamp)
		if err != nil {
			return UpsertResult{}, err
		}

		var exists int
		if err := tx.GetContext(ctx, &exists, "SELECT COUNT(1) FROM releases WHERE id = ?", r.ID); err != nil {
			return UpsertResult{}, fmt.Errorf("check release %s: %w", r.ID, err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO releases (
				id, title, release_date, budget, budget_year, revenue, revenue_year,
				genres, runtime, collection, popularity, vote_average, vote_count, updated_at
			) VALUES (
				:id, :title, :release_date, :budget, :budget_year, :revenue, :revenue_year,
				:genres, :runtime, :collection, :popularity, :vote_average, :vote_count, :updated_at
			)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				release_date = excluded.release_date,
				budget = excluded.budget,
				budget_year = excluded.budget_year,
				revenue = excluded.revenue,
				revenue_year = excluded.revenue_year,
				genres = excluded.genres,
				runtime = excluded.runtime,
				collection = excluded.collection,
				popularity = excluded.popularity,
				vote_average = excluded.vote_average,
				vote_count = excluded.vote_count,
				updated_at = excluded.updated_at`, row); err != nil {
			return UpsertResult{}, fmt.Errorf("upsert release %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM credits WHERE release_id = ?", r.ID); err != nil {
			return UpsertResult{}, fmt.Errorf("clear credits %s: %w", r.ID, err)
		}
		credits := creditRows(r)
		if len(credits) > 0 {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO credits (release_id, role, position, person_id, name)
				VALUES (:release_id, :role, :position, :person_id, :name)`, credits); err != nil {
				return UpsertResult{}, fmt.Errorf("insert credits %s: %w", r.ID, err)
			}
		}

		if exists > 0 {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}
	return res, nil
}

// Release implements Store.
func (s *SQLiteStore) Release(ctx context.Context, id string) (model.Release, error) {
	defer observe("release")()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row releaseRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM releases WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Release{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Release{}, fmt.Errorf("get release %s: %w", id, err)
	}
	var credits []creditRow
	if err := s.db.SelectContext(ctx, &credits,
		"SELECT * FROM credits WHERE release_id = ? ORDER BY role, position", id); err != nil {
		return model.Release{}, fmt.Errorf("get credits %s: %w", id, err)
	}
	r, err := fromRow(row)
	if err != nil {
		return model.Release{}, err
	}
	attach(&r, credits)
	return r, nil
}

// Releases implements Store.
func (s *SQLiteStore) Releases(ctx context.Context) ([]model.Release, error) {
	defer observe("releases")()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []releaseRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM releases ORDER BY release_date, id"); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	var credits []creditRow
	if err := s.db.SelectContext(ctx, &credits,
		"SELECT * FROM credits ORDER BY release_id, role, position"); err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	byRelease := make(map[string][]creditRow, len(rows))
	for _, c := range credits {
		byRelease[c.ReleaseID] = append(byRelease[c.ReleaseID], c)
	}

	out := make([]model.Release, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		attach(&r, byRelease[row.ID])
		out = append(out, r)
	}
	return out, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	defer observe("count")()
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(1) FROM releases"); err != nil {
		return 0, fmt.Errorf("count releases: %w", err)
	}
	return n, nil
}

// SavePriceIndex implements Store.
func (s *SQLiteStore) SavePriceIndex(ctx context.Context, points []currency.Point) error {
	defer observe("save_price_index")()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM price_index"); err != nil {
		return fmt.Errorf("clear price index: %w", err)
	}
	if len(points) > 0 {
		if _, err := tx.NamedExecContext(ctx,
			"INSERT INTO price_index (year, value) VALUES (:year, :value)", points); err != nil {
			return fmt.Errorf("insert price index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price index: %w", err)
	}
	return nil
}

// PriceIndex implements Store.
func (s *SQLiteStore) PriceIndex(ctx context.Context) ([]currency.Point, error) {
	defer observe("price_index")()
	var points []currency.Point
	if err := s.db.SelectContext(ctx, &points, "SELECT year, value FROM price_index ORDER BY year"); err != nil {
		return nil, fmt.Errorf("list price index: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoPriceIndex
	}
	return points, nil
}

func toRow(r *model.Release, stamp string) (releaseRow, error) {
	genres, err := json.Marshal(nonNil(r.Genres))
	if err != nil {
		return releaseRow{}, fmt.Errorf("encode genres %s: %w", r.ID, err)
	}
	row := releaseRow{
		ID:          r.ID,
		Title:       r.Title,
		Budget:      r.Budget.Amount,
		BudgetYear:  r.Budget.Year,
		Genres:      string(genres),
		Runtime:     r.Runtime,
		Collection:  r.Collection,
		Popularity:  r.Post.Popularity,
		VoteAverage: r.Post.VoteAverage,
		VoteCount:   r.Post.VoteCount,
		UpdatedAt:   stamp,
	}
	if !r.ReleaseDate.IsZero() {
		row.ReleaseDate = r.ReleaseDate.UTC().Format(dateLayout)
	}
	if r.Revenue != nil {
		row.Revenue = sql.NullFloat64{Float64: r.Revenue.Amount, Valid: true}
		row.RevenueYear = r.Revenue.Year
	}
	return row, nil
}

func fromRow(row releaseRow) (model.Release, error) {
	r := model.Release{
		ID:         row.ID,
		Title:      row.Title,
		Budget:     model.Money{Amount: row.Budget, Year: row.BudgetYear},
		Runtime:    row.Runtime,
		Collection: row.Collection,
		Post: model.PostRelease{
			Popularity:  row.Popularity,
			VoteAverage: row.VoteAverage,
			VoteCount:   row.VoteCount,
		},
	}
	if row.ReleaseDate != "" {
		d, err := time.Parse(dateLayout, row.ReleaseDate)
		if err != nil {
			return model.Release{}, fmt.Errorf("%w: release %s date %q", ErrInvalidRow, row.ID, row.ReleaseDate)
		}
		r.ReleaseDate = d
	}
	if row.Revenue.Valid {
		r.Revenue = &model.Money{Amount: row.Revenue.Float64, Year: row.RevenueYear}
	}
	if err := json.Unmarshal([]byte(row.Genres), &r.Genres); err != nil {
		return model.Release{}, fmt.Errorf("%w: release %s genres: %w", ErrInvalidRow, row.ID, err)
	}
	return r, nil
}

func creditRows(r *model.Release) []creditRow {
	out := make([]creditRow, 0, len(r.Cast)+len(r.Directors))
	for i, p := range r.Cast {
		out = append(out, creditRow{ReleaseID: r.ID, Role: roleCast, Position: i, PersonID: p.ID, Name: p.Name})
	}
	for i, p := range r.Directors {
		out = append(out, creditRow{ReleaseID: r.ID, Role: roleDirector, Position: i, PersonID: p.ID, Name: p.Name})
	}
	return out
}

// attach expects credits ordered by role, then position.
func attach(r *model.Release, credits []creditRow) {
	for _, c := range credits {
		p := model.Person{ID: c.PersonID, Name: c.Name}
		switch c.Role {
		case roleCast:
			r.Cast = append(r.Cast, p)
		case roleDirector:
			r.Directors = append(r.Directors, p)
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
