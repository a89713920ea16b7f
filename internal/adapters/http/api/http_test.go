package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/boxoffice/internal/adapters/http/api"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/talent"
	"github.com/okian/boxoffice/internal/domain/types"
	logging "github.com/okian/boxoffice/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	predictErr error
	readErr    error
	got        types.PredictRequest
	schema     features.Schema
}

func (m *mockDeps) Predict(_ context.Context, req types.PredictRequest) (types.Prediction, error) {
	m.got = req
	if m.predictErr != nil {
		return types.Prediction{}, m.predictErr
	}
	return types.Prediction{
		ArtifactID:    "art-1",
		Revenue:       250e6,
		RevenueText:   types.FormatMoney(250e6),
		LogRevenue:    19.34,
		Baseline:      17.5,
		Contributions: []types.Contribution{{Feature: "budget_adj", Value: 1e8, Contribution: 1.84}},
		ReferenceYear: 2024,
	}, nil
}

func (m *mockDeps) Schema(context.Context) (features.Schema, error) {
	return m.schema, m.readErr
}

func (m *mockDeps) Importance(context.Context) ([]types.Importance, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return []types.Importance{{Feature: "budget_adj", MeanAbs: 0.9}, {Feature: "runtime", MeanAbs: 0.1}}, nil
}

func (m *mockDeps) Model(context.Context) (types.ModelSummary, error) {
	if m.readErr != nil {
		return types.ModelSummary{}, m.readErr
	}
	return types.ModelSummary{ArtifactID: "art-1", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Trees: 300}, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"predictions": 3}
}

type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

const validRequest = `{"title":"Dune","release_date":"2021-10-22","budget":165000000,"genres":["Science Fiction","Adventure"],
"runtime":155,"cast":["p1","p2"],"directors":["d1"],"collection":"Dune Collection"}`

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeErr(w *httptest.ResponseRecorder) errBody {
	var e errBody
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	return e
}

func TestPredict(t *testing.T) {
	_ = logging.Init(logging.WithWriter(io.Discard))

	Convey("Given a registered API", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a valid request is posted", func() {
			w := do(mux, http.MethodPost, "/predict", validRequest)

			Convey("Then the prediction is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var p types.Prediction
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.RevenueText, ShouldEqual, "$250.00M")
				So(p.Contributions, ShouldHaveLength, 1)
				So(deps.got.Directors, ShouldResemble, []string{"d1"})
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/predict", `{"title":`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeErr(w).Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When a required field is missing", func() {
			w := do(mux, http.MethodPost, "/predict", strings.Replace(validRequest, `"directors":["d1"],`, "", 1))

			Convey("Then the response is 422 naming the field", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				e := decodeErr(w)
				So(e.Code, ShouldEqual, "validation")
				So(e.Field, ShouldEqual, "directors")
			})
		})

		Convey("When the date is malformed", func() {
			w := do(mux, http.MethodPost, "/predict", strings.Replace(validRequest, "2021-10-22", "22/10/2021", 1))

			Convey("Then the release date is named", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Field, ShouldEqual, "release_date")
			})
		})

		Convey("When the release year is outside the price index", func() {
			deps.predictErr = &currency.OutOfRangeError{Year: 2021, First: 1950, Last: 2020, Reason: "gap"}
			w := do(mux, http.MethodPost, "/predict", validRequest)

			Convey("Then the response is 422 naming the year", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				e := decodeErr(w)
				So(e.Code, ShouldEqual, "out_of_range")
				So(e.Field, ShouldEqual, "release_date")
				So(e.Message, ShouldContainSubstring, "2021")
			})
		})

		Convey("When only the budget year is outside the index", func() {
			deps.predictErr = &currency.OutOfRangeError{Year: 1900, First: 1950, Last: 2024, Reason: "before_first"}
			w := do(mux, http.MethodPost, "/predict", strings.Replace(validRequest, `"runtime":155`, `"runtime":155,"budget_year":1900`, 1))

			Convey("Then the budget year is named", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeErr(w).Field, ShouldEqual, "budget_year")
			})
		})

		Convey("When the vector does not fit the schema", func() {
			deps.predictErr = &features.SchemaMismatchError{Field: "runtime", Reason: "not finite"}
			w := do(mux, http.MethodPost, "/predict", validRequest)

			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeErr(w).Field, ShouldEqual, "runtime")
		})

		Convey("When no model is loaded", func() {
			deps.predictErr = types.ErrNoArtifact
			w := do(mux, http.MethodPost, "/predict", validRequest)

			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeErr(w).Code, ShouldEqual, "model_unavailable")
		})

		Convey("When prediction fails unexpectedly", func() {
			deps.predictErr = errors.New("disk on fire")
			w := do(mux, http.MethodPost, "/predict", validRequest)

			Convey("Then the cause is not leaked", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
			})
		})

		Convey("When predict is called with GET", func() {
			w := do(mux, http.MethodGet, "/predict", "")

			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given an API over a loaded model", t, func() {
		s, err := features.BuildSchema([]string{"Drama", "Action"}, talent.DefaultPolicy(), 1e8, 2024)
		So(err, ShouldBeNil)
		deps := &mockDeps{schema: s}
		mux := newMux(deps)

		Convey("When the schema is requested", func() {
			w := do(mux, http.MethodGet, "/schema", "")

			Convey("Then fields come back in schema order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Fingerprint string `json:"fingerprint"`
					Fields      []struct {
						Name string `json:"name"`
					} `json:"fields"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Fingerprint, ShouldEqual, s.Fingerprint)
				So(body.Fields, ShouldHaveLength, s.Width())
				So(body.Fields[0].Name, ShouldEqual, s.Names()[0])
			})
		})

		Convey("When importance is requested", func() {
			w := do(mux, http.MethodGet, "/importance", "")

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"feature":"budget_adj"`)
		})

		Convey("When the model summary is requested", func() {
			w := do(mux, http.MethodGet, "/model", "")

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"artifact_id":"art-1"`)
		})

		Convey("When stats and metrics are requested", func() {
			So(do(mux, http.MethodGet, "/stats", "").Body.String(), ShouldContainSubstring, `"predictions":3`)
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When a read endpoint is posted to", func() {
			So(do(mux, http.MethodPost, "/schema", "{}").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given an API with no model", t, func() {
		mux := newMux(&mockDeps{readErr: types.ErrNoArtifact})

		for _, path := range []string{"/schema", "/importance", "/model"} {
			So(do(mux, http.MethodGet, path, "").Code, ShouldEqual, http.StatusServiceUnavailable)
		}
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a wrapped kind error", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(api.NewKind("api.op", api.ErrInternal).Error(), ShouldEqual, "api.op: internal error")
	})
}
