package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/boxoffice/internal/adapters/repository"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openStore(t *testing.T) (*repository.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boxoffice.db")
	s, err := repository.Open(context.Background(), path,
		repository.WithQueryTimeout(5*time.Second),
		repository.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func inception() model.Release {
	return model.Release{
		ID:          "27205",
		Title:       "Inception",
		ReleaseDate: time.Date(2010, time.July, 15, 0, 0, 0, 0, time.UTC),
		Budget:      model.Money{Amount: 160e6},
		Revenue:     &model.Money{Amount: 839_030_630},
		Genres:      []string{"Action", "Science Fiction", "Adventure"},
		Runtime:     148,
		Cast: []model.Person{
			{ID: "6193", Name: "Leonardo DiCaprio"},
			{ID: "24045", Name: "Joseph Gordon-Levitt"},
		},
		Directors: []model.Person{{ID: "525", Name: "Christopher Nolan"}},
		Post:      model.PostRelease{Popularity: 83.9, VoteAverage: 8.4, VoteCount: 35000},
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty dataset", t, func() {
		s, path := openStore(t)
		So(s.Path(), ShouldEqual, path)

		n, err := s.Count(ctx)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 0)

		Convey("When a release is upserted", func() {
			res, err := s.UpsertReleases(ctx, []model.Release{inception()})

			Convey("Then it reads back with credits in billing order", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, repository.UpsertResult{Inserted: 1})

				got, err := s.Release(ctx, "27205")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, inception())
			})

			Convey("And the same ID is written again with new credits", func() {
				r := inception()
				r.Cast = r.Cast[:1]
				r.Revenue = nil
				res, err := s.UpsertReleases(ctx, []model.Release{r})

				Convey("Then the row is replaced, not duplicated", func() {
					So(err, ShouldBeNil)
					So(res, ShouldResemble, repository.UpsertResult{Updated: 1})
					n, _ := s.Count(ctx)
					So(n, ShouldEqual, 1)
					got, err := s.Release(ctx, "27205")
					So(err, ShouldBeNil)
					So(got.Cast, ShouldHaveLength, 1)
					So(got.Revenue, ShouldBeNil)
				})
			})
		})

		Convey("When several releases are stored", func() {
			late := inception()
			late.ID, late.ReleaseDate = "b", time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
			early := inception()
			early.ID, early.ReleaseDate = "c", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
			sameDay := inception()
			sameDay.ID, sameDay.ReleaseDate = "a", late.ReleaseDate
			_, err := s.UpsertReleases(ctx, []model.Release{late, early, sameDay})
			So(err, ShouldBeNil)

			Convey("Then they are listed by date, then ID", func() {
				all, err := s.Releases(ctx)
				So(err, ShouldBeNil)
				ids := make([]string, len(all))
				for i, r := range all {
					ids[i] = r.ID
				}
				So(ids, ShouldResemble, []string{"c", "a", "b"})
				So(all[0].Directors, ShouldResemble, inception().Directors)
			})
		})

		Convey("When a release without an ID is written", func() {
			r := inception()
			r.ID = ""
			_, err := s.UpsertReleases(ctx, []model.Release{r})

			Convey("Then the batch is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidRow), ShouldBeTrue)
			})
		})

		Convey("When an unknown ID is requested", func() {
			_, err := s.Release(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When no price index was saved", func() {
			_, err := s.PriceIndex(ctx)

			Convey("Then ErrNoPriceIndex is returned", func() {
				So(errors.Is(err, repository.ErrNoPriceIndex), ShouldBeTrue)
			})
		})

		Convey("When a price index is saved twice", func() {
			So(s.SavePriceIndex(ctx, []currency.Point{{Year: 2000, Value: 1}}), ShouldBeNil)
			pts := []currency.Point{{Year: 2024, Value: 313.689}, {Year: 2010, Value: 218.056}}
			So(s.SavePriceIndex(ctx, pts), ShouldBeNil)

			Convey("Then only the latest index is kept, sorted by year", func() {
				got, err := s.PriceIndex(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []currency.Point{{Year: 2010, Value: 218.056}, {Year: 2024, Value: 313.689}})
			})
		})
	})

	Convey("Given a dataset file that was closed", t, func() {
		s, path := openStore(t)
		_, err := s.UpsertReleases(ctx, []model.Release{inception()})
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			again, err := repository.Open(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = again.Close() }()

			Convey("Then migrations are not reapplied and data survives", func() {
				n, err := again.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}
