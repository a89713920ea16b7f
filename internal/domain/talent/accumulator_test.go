package talent_test

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/boxoffice/internal/domain/talent"
	. "github.com/smartystreets/goconvey/convey"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rev(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	Convey("Given scores", t, func() {
		Convey("Then NoHistory is not zero", func() {
			v, ok := talent.NoHistory.Value()
			So(ok, ShouldBeFalse)
			So(v, ShouldEqual, 0)
			So(talent.NoHistory.HasHistory(), ShouldBeFalse)
			So(talent.Known(0, 1).HasHistory(), ShouldBeTrue)
		})

		Convey("Then Mean skips missing scores", func() {
			m := talent.Mean(talent.Known(100, 1), talent.NoHistory, talent.Known(300, 2))
			v, ok := m.Value()
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 200)
			So(m.Count(), ShouldEqual, 3)
			So(talent.Mean(talent.NoHistory, talent.NoHistory), ShouldResemble, talent.NoHistory)
		})

		Convey("Then JSON encodes NoHistory as null", func() {
			b, err := json.Marshal(map[string]talent.Score{"a": talent.NoHistory, "b": talent.Known(2.5, 1)})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"a":null,"b":2.5}`)

			var back map[string]talent.Score
			So(json.Unmarshal(b, &back), ShouldBeNil)
			So(back["a"].HasHistory(), ShouldBeFalse)
			v, _ := back["b"].Value()
			So(v, ShouldEqual, 2.5)
		})
	})
}

func TestAggregatorScores(t *testing.T) {
	Convey("Given the default policy", t, func() {
		agg := talent.Aggregator{Policy: talent.DefaultPolicy()}

		Convey("When a director has releases A then B", func() {
			out, err := agg.Scores("d1", []talent.Credit{
				{ReleaseID: "A", Date: day(2010, 5, 1), Revenue: rev(100)},
				{ReleaseID: "B", Date: day(2012, 5, 1), Revenue: rev(300)},
			})

			Convey("Then A has no history and B sees only A", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].Score.HasHistory(), ShouldBeFalse)
				v, ok := out[1].Score.Value()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 100)
			})
		})

		Convey("When two releases share a date", func() {
			out, err := agg.Scores("p", []talent.Credit{
				{ReleaseID: "A", Date: day(2010, 1, 1), Revenue: rev(10)},
				{ReleaseID: "B", Date: day(2011, 7, 4), Revenue: rev(20)},
				{ReleaseID: "C", Date: day(2011, 7, 4), Revenue: rev(30)},
				{ReleaseID: "D", Date: day(2012, 1, 1), Revenue: rev(40)},
			})

			Convey("Then they do not feed each other", func() {
				So(err, ShouldBeNil)
				vb, _ := out[1].Score.Value()
				vc, _ := out[2].Score.Value()
				vd, _ := out[3].Score.Value()
				So(vb, ShouldEqual, 10)
				So(vc, ShouldEqual, 10)
				So(vd, ShouldEqual, 20)
			})
		})

		Convey("When a prior revenue is unknown", func() {
			out, err := agg.Scores("p", []talent.Credit{
				{ReleaseID: "A", Date: day(2010, 1, 1), Revenue: nil},
				{ReleaseID: "B", Date: day(2011, 1, 1), Revenue: rev(50)},
				{ReleaseID: "C", Date: day(2012, 1, 1), Revenue: nil},
			})

			Convey("Then it is excluded rather than counted as zero", func() {
				So(err, ShouldBeNil)
				So(out[1].Score.HasHistory(), ShouldBeFalse)
				v, _ := out[2].Score.Value()
				So(v, ShouldEqual, 50)
				So(out[2].Score.Count(), ShouldEqual, 1)
			})
		})

		Convey("When input is out of order", func() {
			_, err := agg.Scores("p", []talent.Credit{
				{ReleaseID: "B", Date: day(2012, 1, 1), Revenue: rev(1)},
				{ReleaseID: "A", Date: day(2010, 1, 1), Revenue: rev(1)},
			})

			Convey("Then a leakage violation is reported", func() {
				So(errors.Is(err, talent.ErrLeakageViolation), ShouldBeTrue)
				var lv *talent.LeakageViolationError
				So(errors.As(err, &lv), ShouldBeTrue)
				So(lv.PersonID, ShouldEqual, "p")
				So(lv.ReleaseID, ShouldEqual, "A")
				So(lv.Reason, ShouldEqual, "unordered")
			})
		})

		Convey("When the same release repeats", func() {
			c := talent.Credit{ReleaseID: "A", Date: day(2012, 1, 1), Revenue: rev(1)}
			_, err := agg.Scores("p", []talent.Credit{c, c})

			Convey("Then it is a leakage violation", func() {
				So(errors.Is(err, talent.ErrLeakageViolation), ShouldBeTrue)
			})
		})
	})

	Convey("Given a window of two", t, func() {
		agg := talent.Aggregator{Policy: talent.Policy{Window: 2, Cast: talent.CastLead}}
		out, err := agg.Scores("p", []talent.Credit{
			{ReleaseID: "A", Date: day(2001, 1, 1), Revenue: rev(10)},
			{ReleaseID: "B", Date: day(2002, 1, 1), Revenue: rev(20)},
			{ReleaseID: "C", Date: day(2003, 1, 1), Revenue: rev(60)},
			{ReleaseID: "D", Date: day(2004, 1, 1), Revenue: rev(0)},
		})

		Convey("Then only the last two settled releases count", func() {
			So(err, ShouldBeNil)
			vc, _ := out[2].Score.Value()
			vd, _ := out[3].Score.Value()
			So(vc, ShouldEqual, 15)
			So(vd, ShouldEqual, 40)
			So(out[3].Score.Count(), ShouldEqual, 2)
		})
	})

	Convey("Given a 90-day settle delay", t, func() {
		agg := talent.Aggregator{Policy: talent.Policy{SettleDays: 90, Cast: talent.CastLead}}
		out, err := agg.Scores("p", []talent.Credit{
			{ReleaseID: "A", Date: day(2010, 1, 1), Revenue: rev(10)},
			{ReleaseID: "B", Date: day(2010, 2, 1), Revenue: rev(20)},
			{ReleaseID: "C", Date: day(2010, 6, 1), Revenue: rev(30)},
		})

		Convey("Then outcomes count only once settled", func() {
			So(err, ShouldBeNil)
			So(out[1].Score.HasHistory(), ShouldBeFalse)
			v, _ := out[2].Score.Value()
			So(v, ShouldEqual, 15)
		})
	})
}

func TestAccumulatorImmutability(t *testing.T) {
	Convey("Given an accumulator that has seen one release", t, func() {
		acc := talent.NewAccumulator("p", talent.Policy{Window: 3, Cast: talent.CastLead})
		_, acc, err := acc.Step(talent.Credit{ReleaseID: "A", Date: day(2010, 1, 1), Revenue: rev(10)})
		So(err, ShouldBeNil)

		Convey("When stepping two different branches from the same state", func() {
			s1, _, err1 := acc.Step(talent.Credit{ReleaseID: "B", Date: day(2011, 1, 1), Revenue: rev(1000)})
			s2, _, err2 := acc.Step(talent.Credit{ReleaseID: "C", Date: day(2011, 1, 1), Revenue: rev(5)})

			Convey("Then both see the same prior state", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				v1, _ := s1.Value()
				v2, _ := s2.Value()
				So(v1, ShouldEqual, 10)
				So(v2, ShouldEqual, 10)
			})
		})
	})
}

// TestNoLeakageMutation perturbs the outcome of every release at or after a
// position and checks that no score emitted up to that position moves.
func TestNoLeakageMutation(t *testing.T) {
	Convey("Given a long credit history", t, func() {
		rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test data
		base := day(1990, 1, 1)
		credits := make([]talent.Credit, 60)
		date := base
		for i := range credits {
			if rng.Intn(4) != 0 {
				date = date.AddDate(0, 0, 1+rng.Intn(400))
			}
			var r *float64
			if rng.Intn(6) != 0 {
				r = rev(float64(1+rng.Intn(1_000_000_000)))
			}
			credits[i] = talent.Credit{ReleaseID: string(rune('A'+i/26)) + string(rune('a'+i%26)), Date: date, Revenue: r}
		}
		talent.SortCredits(credits)

		for _, policy := range []talent.Policy{
			talent.DefaultPolicy(),
			{Window: 3, Cast: talent.CastLead},
			{SettleDays: 120, Cast: talent.CastLead},
		} {
			agg := talent.Aggregator{Policy: policy}
			want, err := agg.Scores("p", credits)
			So(err, ShouldBeNil)

			for i := range credits {
				mutated := make([]talent.Credit, len(credits))
				copy(mutated, credits)
				for j := i; j < len(mutated); j++ {
					mutated[j].Revenue = rev(float64(rng.Intn(1000)))
				}
				got, err := agg.Scores("p", mutated)
				So(err, ShouldBeNil)
				for j := 0; j <= i; j++ {
					So(got[j].Score, ShouldResemble, want[j].Score)
				}
			}
		}
	})
}
