package currency_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func testIndex() *currency.Index {
	idx, err := currency.NewIndex([]currency.Point{
		{Year: 2000, Value: 172.2},
		{Year: 2001, Value: 177.1},
		{Year: 2002, Value: 179.9},
		{Year: 2010, Value: 218.056},
		{Year: 2024, Value: 313.689},
	})
	if err != nil {
		panic(err)
	}
	return idx
}

func TestIndex(t *testing.T) {
	Convey("Given index points", t, func() {
		Convey("When a value is not positive", func() {
			_, err := currency.NewIndex([]currency.Point{{Year: 2000, Value: 0}})

			Convey("Then the index is rejected", func() {
				So(errors.Is(err, currency.ErrInvalidIndex), ShouldBeTrue)
			})
		})

		Convey("When a year repeats", func() {
			_, err := currency.NewIndex([]currency.Point{{Year: 2000, Value: 1}, {Year: 2000, Value: 2}})

			Convey("Then the index is rejected", func() {
				So(errors.Is(err, currency.ErrInvalidIndex), ShouldBeTrue)
			})
		})

		Convey("When the points are valid", func() {
			idx := testIndex()
			first, last := idx.Span()

			Convey("Then span and sorted points are reported", func() {
				So(first, ShouldEqual, 2000)
				So(last, ShouldEqual, 2024)
				So(idx.Len(), ShouldEqual, 5)
				So(idx.Points()[0].Year, ShouldEqual, 2000)
				So(idx.Points()[4].Year, ShouldEqual, 2024)
			})
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given a normalizer over a partial index", t, func() {
		n := currency.NewNormalizer(testIndex())

		Convey("When converting within the index", func() {
			v, err := n.Normalize(100, 2000, 2024)

			Convey("Then the amount scales by the index ratio", func() {
				So(err, ShouldBeNil)
				So(v, ShouldAlmostEqual, 100*313.689/172.2, 1e-9)
			})
		})

		Convey("When source and target match", func() {
			v, err := n.Normalize(42, 2010, 2010)

			Convey("Then the amount is unchanged", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 42)
			})
		})

		Convey("When the release year precedes the first indexed year", func() {
			_, err := n.Normalize(100, 1999, 2024)

			Convey("Then an OutOfRangeError names the year", func() {
				So(errors.Is(err, currency.ErrOutOfRange), ShouldBeTrue)
				var oor *currency.OutOfRangeError
				So(errors.As(err, &oor), ShouldBeTrue)
				So(oor.Year, ShouldEqual, 1999)
				So(oor.Reason, ShouldEqual, "before_first")
			})
		})

		Convey("When the year falls in a gap", func() {
			_, err := n.Normalize(100, 2005, 2024)

			Convey("Then it is out of range", func() {
				var oor *currency.OutOfRangeError
				So(errors.As(err, &oor), ShouldBeTrue)
				So(oor.Reason, ShouldEqual, "gap")
			})
		})

		Convey("When the year is after the last indexed year", func() {
			v, err := n.Normalize(100, 2026, 2024)

			Convey("Then it is treated as last-year money", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 100)
			})
		})

		Convey("When the amount is not finite", func() {
			_, err := n.Normalize(math.NaN(), 2000, 2024)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, currency.ErrInvalidAmount), ShouldBeTrue)
			})
		})
	})
}

func TestNormalizeRelease(t *testing.T) {
	Convey("Given a release with budget and revenue", t, func() {
		n := currency.NewNormalizer(testIndex())
		r := model.Release{
			ID:          "1",
			ReleaseDate: time.Date(2000, 6, 1, 0, 0, 0, 0, time.UTC),
			Budget:      model.Money{Amount: 1000},
			Revenue:     &model.Money{Amount: 5000, Year: 2001},
		}

		Convey("When normalized to 2024", func() {
			out, err := currency.NormalizeRelease(n, r, 2024)

			Convey("Then both amounts use their own source year", func() {
				So(err, ShouldBeNil)
				So(out.BudgetAdj, ShouldAlmostEqual, 1000*313.689/172.2, 1e-9)
				So(*out.RevenueAdj, ShouldAlmostEqual, 5000*313.689/177.1, 1e-9)
			})
		})

		Convey("When revenue is unknown", func() {
			r.Revenue = nil
			out, err := currency.NormalizeRelease(n, r, 2024)

			Convey("Then the adjusted revenue stays unknown", func() {
				So(err, ShouldBeNil)
				So(out.RevenueAdj, ShouldBeNil)
			})
		})

		Convey("When the release predates the index", func() {
			r.ReleaseDate = time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC)
			_, err := currency.NormalizeRelease(n, r, 2024)

			Convey("Then the error is out of range", func() {
				So(errors.Is(err, currency.ErrOutOfRange), ShouldBeTrue)
			})
		})
	})
}
