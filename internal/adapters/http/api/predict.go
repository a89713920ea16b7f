package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/boxoffice/internal/adapters/http/bind"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/types"
	"github.com/okian/boxoffice/pkg/logger"
)

// Predictor is the part of Dependencies the predict handler needs.
type Predictor interface {
	Predict(ctx context.Context, req types.PredictRequest) (types.Prediction, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps Predictor
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Predictor) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "", nil)
		return
	}

	req, err := bind.ParseJSON[types.PredictRequest](r)
	if err != nil {
		var fe *bind.FieldError
		if errors.As(err, &fe) {
			writeError(w, http.StatusUnprocessableEntity, "validation", fe.Field, WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "", WrapKind(op, ErrBadRequest, err))
		return
	}

	pred, err := h.deps.Predict(r.Context(), req)
	if err != nil {
		h.writePredictError(w, r, op, req, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (h *PredictHandler) writePredictError(w http.ResponseWriter, r *http.Request, op string, req types.PredictRequest, err error) {
	var (
		oor *currency.OutOfRangeError
		sme *features.SchemaMismatchError
	)
	switch {
	case errors.As(err, &oor):
		field := "release_date"
		if req.BudgetYear != 0 && req.BudgetYear == oor.Year && releaseYear(req) != oor.Year {
			field = "budget_year"
		}
		msg := fmt.Errorf("no price index value for year %d (index covers %d-%d)", oor.Year, oor.First, oor.Last)
		writeError(w, http.StatusUnprocessableEntity, "out_of_range", field, WrapKind(op, ErrBadRequest, msg))
	case errors.As(err, &sme):
		writeError(w, http.StatusUnprocessableEntity, "schema_mismatch", sme.Field, WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, types.ErrNoArtifact):
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "", WrapKind(op, ErrUnavailable, err))
	default:
		logger.Get().Error(r.Context(), "prediction failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "", NewKind(op, ErrInternal))
	}
}

func releaseYear(req types.PredictRequest) int {
	t, err := time.Parse(time.DateOnly, req.ReleaseDate)
	if err != nil {
		return 0
	}
	return t.Year()
}
