package features_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/domain/talent"
	. "github.com/smartystreets/goconvey/convey"
)

func sampleRelease(genres ...string) model.NormalizedRelease {
	return model.NormalizedRelease{
		Release: model.Release{
			ID:          "r1",
			ReleaseDate: time.Date(2015, time.July, 17, 0, 0, 0, 0, time.UTC),
			Genres:      genres,
			Runtime:     117,
			Collection:  "Ant-Man Collection",
		},
		BudgetAdj: 170e6,
	}
}

func mustSchema(genres ...string) features.Schema {
	s, err := features.BuildSchema(genres, talent.DefaultPolicy(), 5e7, 2024)
	if err != nil {
		panic(err)
	}
	return s
}

func TestSeasonOf(t *testing.T) {
	Convey("Given every calendar month", t, func() {
		want := map[time.Month]features.Season{
			time.January: features.SeasonDumpMonths, time.February: features.SeasonDumpMonths,
			time.March: features.SeasonSpringFall, time.April: features.SeasonSpringFall,
			time.May: features.SeasonSummerBlockbuster, time.June: features.SeasonSummerBlockbuster,
			time.July: features.SeasonSummerBlockbuster, time.August: features.SeasonDumpMonths,
			time.September: features.SeasonDumpMonths, time.October: features.SeasonSpringFall,
			time.November: features.SeasonHolidaySeason, time.December: features.SeasonHolidaySeason,
		}

		Convey("Then each maps to exactly its bucket", func() {
			for m := time.January; m <= time.December; m++ {
				So(features.SeasonOf(m), ShouldEqual, want[m])
			}
		})
	})
}

func TestBuildSchema(t *testing.T) {
	Convey("Given a genre vocabulary", t, func() {
		s := mustSchema("Drama", "Action", "Science Fiction")

		Convey("Then fields follow the fixed layout", func() {
			So(s.Names(), ShouldResemble, []string{
				"budget_adj", "runtime", "is_franchise",
				"genre_action", "genre_drama", "genre_science_fiction",
				"season_Dump_Months", "season_Holiday_Season", "season_Spring_Fall", "season_Summer_Blockbuster",
				"director_has_history", "director_score", "cast_has_history", "cast_score",
			})
			So(s.Genres, ShouldResemble, []string{"Action", "Drama", "Science Fiction"})
			So(s.PostReleaseFields(), ShouldBeEmpty)
			So(s.Verify(), ShouldBeNil)
		})

		Convey("Then the fingerprint is stable across builds and JSON", func() {
			again := mustSchema("Science Fiction", "Action", "Drama")
			So(again.Fingerprint, ShouldEqual, s.Fingerprint)

			b, err := json.Marshal(s)
			So(err, ShouldBeNil)
			var back features.Schema
			So(json.Unmarshal(b, &back), ShouldBeNil)
			So(back.Verify(), ShouldBeNil)
			So(back, ShouldResemble, s)
		})

		Convey("Then a changed policy changes the fingerprint", func() {
			other, err := features.BuildSchema(s.Genres, talent.Policy{Window: 3, Cast: talent.CastLead}, 5e7, 2024)
			So(err, ShouldBeNil)
			So(other.Fingerprint, ShouldNotEqual, s.Fingerprint)
		})

		Convey("When a stored field is tampered with", func() {
			s.Fields[0].Name = "budget"

			Convey("Then verification fails", func() {
				So(errors.Is(s.Verify(), features.ErrInvalidSchema), ShouldBeTrue)
			})
		})
	})

	Convey("Given genres that collide after naming", t, func() {
		_, err := features.BuildSchema([]string{"Sci-Fi", "Sci Fi"}, talent.DefaultPolicy(), 0, 2024)

		Convey("Then the schema is rejected", func() {
			So(errors.Is(err, features.ErrInvalidSchema), ShouldBeTrue)
		})
	})
}

func TestVocabularyAndFill(t *testing.T) {
	Convey("Given releases", t, func() {
		a, b := 100.0, 300.0
		rs := []model.NormalizedRelease{
			{Release: model.Release{Genres: []string{"Drama", " Action "}}, RevenueAdj: &a},
			{Release: model.Release{Genres: []string{"Action"}}, RevenueAdj: &b},
			{Release: model.Release{Genres: []string{"Horror"}}},
		}

		Convey("Then the vocabulary is sorted and unique", func() {
			So(features.Vocabulary(rs), ShouldResemble, []string{"Action", "Drama", "Horror"})
		})

		Convey("Then the fill ignores unknown revenue", func() {
			So(features.ScoreFill(rs), ShouldEqual, 200)
		})
	})
}

func TestAssemble(t *testing.T) {
	Convey("Given an assembler", t, func() {
		a, err := features.NewAssembler(mustSchema("Action", "Adventure", "Comedy"))
		So(err, ShouldBeNil)

		Convey("When a release has known talent scores", func() {
			v, err := a.Assemble(sampleRelease("Action", "Comedy"), talent.Known(3e8, 2), talent.Known(1e8, 1))

			Convey("Then every field is set", func() {
				So(err, ShouldBeNil)
				get := func(n string) float64 { x, _ := v.Get(n); return x }
				So(get("budget_adj"), ShouldEqual, 170e6)
				So(get("runtime"), ShouldEqual, 117)
				So(get("is_franchise"), ShouldEqual, 1)
				So(get("genre_action"), ShouldEqual, 1)
				So(get("genre_adventure"), ShouldEqual, 0)
				So(get("genre_comedy"), ShouldEqual, 1)
				So(get("season_Summer_Blockbuster"), ShouldEqual, 1)
				So(get("season_Dump_Months"), ShouldEqual, 0)
				So(get("director_has_history"), ShouldEqual, 1)
				So(get("director_score"), ShouldEqual, 3e8)
				So(get("cast_score"), ShouldEqual, 1e8)
			})
		})

		Convey("When talent has no history", func() {
			v, err := a.Assemble(sampleRelease("Action"), talent.NoHistory, talent.NoHistory)

			Convey("Then the flags are zero and the scores take the fill", func() {
				So(err, ShouldBeNil)
				flag, _ := v.Get("director_has_history")
				score, _ := v.Get("director_score")
				So(flag, ShouldEqual, 0)
				So(score, ShouldEqual, 5e7)
				flag, _ = v.Get("cast_has_history")
				So(flag, ShouldEqual, 0)
			})
		})

		Convey("When the only genre was never seen in training", func() {
			r := sampleRelease("Documentary")
			v, err := a.Assemble(r, talent.NoHistory, talent.NoHistory)

			Convey("Then all genre indicators are zero and the tag is reported", func() {
				So(err, ShouldBeNil)
				for _, n := range []string{"genre_action", "genre_adventure", "genre_comedy"} {
					x, _ := v.Get(n)
					So(x, ShouldEqual, 0)
				}
				So(a.UnseenGenres(r.Genres), ShouldResemble, []string{"Documentary"})
			})
		})

		Convey("When the budget is not finite", func() {
			r := sampleRelease("Action")
			r.BudgetAdj = math.Inf(1)
			_, err := a.Assemble(r, talent.NoHistory, talent.NoHistory)

			Convey("Then a schema mismatch names the field", func() {
				var sm *features.SchemaMismatchError
				So(errors.As(err, &sm), ShouldBeTrue)
				So(sm.Field, ShouldEqual, "budget_adj")
			})
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a schema and a valid vector", t, func() {
		s := mustSchema("Action")
		a, err := features.NewAssembler(s)
		So(err, ShouldBeNil)
		v, err := a.Assemble(sampleRelease("Action"), talent.NoHistory, talent.NoHistory)
		So(err, ShouldBeNil)
		clone := func() features.Vector {
			return features.Vector{Names: append([]string(nil), v.Names...), Values: append([]float64(nil), v.Values...)}
		}

		Convey("Then it validates", func() {
			So(s.Validate(v), ShouldBeNil)
		})

		Convey("When a field is missing", func() {
			w := clone()
			w.Names, w.Values = w.Names[:len(w.Names)-1], w.Values[:len(w.Values)-1]
			err := s.Validate(w)

			Convey("Then it names the missing field", func() {
				var sm *features.SchemaMismatchError
				So(errors.As(err, &sm), ShouldBeTrue)
				So(sm.Field, ShouldEqual, "cast_score")
				So(sm.Reason, ShouldEqual, "missing")
			})
		})

		Convey("When an extra field is appended", func() {
			w := clone()
			w.Names = append(w.Names, "popularity")
			w.Values = append(w.Values, 12)
			err := s.Validate(w)

			Convey("Then it names the extra field", func() {
				var sm *features.SchemaMismatchError
				So(errors.As(err, &sm), ShouldBeTrue)
				So(sm.Field, ShouldEqual, "popularity")
			})
		})

		Convey("When two fields are swapped", func() {
			w := clone()
			w.Names[0], w.Names[1] = w.Names[1], w.Names[0]

			Convey("Then it reports the order", func() {
				So(errors.Is(s.Validate(w), features.ErrSchemaMismatch), ShouldBeTrue)
			})
		})

		Convey("When an indicator is not binary", func() {
			w := clone()
			i, _ := s.Index("is_franchise")
			w.Values[i] = 0.5

			Convey("Then it is rejected", func() {
				So(errors.Is(s.Validate(w), features.ErrSchemaMismatch), ShouldBeTrue)
			})
		})

		Convey("When two seasons are hot", func() {
			w := clone()
			i, _ := s.Index("season_Dump_Months")
			w.Values[i] = 1

			Convey("Then the season group is rejected", func() {
				var sm *features.SchemaMismatchError
				So(errors.As(s.Validate(w), &sm), ShouldBeTrue)
				So(sm.Field, ShouldEqual, "season")
			})
		})
	})
}
