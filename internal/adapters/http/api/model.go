package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/types"
)

// ModelReader exposes the loaded artifact.
type ModelReader interface {
	Schema(ctx context.Context) (features.Schema, error)
	Importance(ctx context.Context) ([]types.Importance, error)
	Model(ctx context.Context) (types.ModelSummary, error)
}

// ModelHandler serves read-only views of the loaded artifact.
type ModelHandler struct {
	deps ModelReader
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelReader) *ModelHandler {
	return &ModelHandler{deps: deps}
}

type schemaField struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Group        string `json:"group"`
	Availability string `json:"availability"`
}

type schemaResponse struct {
	Version       int           `json:"version"`
	Fingerprint   string        `json:"fingerprint"`
	ReferenceYear int           `json:"reference_year"`
	Genres        []string      `json:"genres"`
	Fields        []schemaField `json:"fields"`
}

// HandleSchema handles GET /schema requests.
func (h *ModelHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s, err := h.deps.Schema(r.Context())
	if err != nil {
		writeReadError(w, "api.schema", err)
		return
	}
	resp := schemaResponse{
		Version:       s.Version,
		Fingerprint:   s.Fingerprint,
		ReferenceYear: s.ReferenceYear,
		Genres:        s.Genres,
		Fields:        make([]schemaField, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		resp.Fields = append(resp.Fields, schemaField{
			Name:         f.Name,
			Kind:         string(f.Kind),
			Group:        f.Group,
			Availability: string(f.Availability),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleImportance handles GET /importance requests.
func (h *ModelHandler) HandleImportance(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	imp, err := h.deps.Importance(r.Context())
	if err != nil {
		writeReadError(w, "api.importance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"importance": imp})
}

// HandleModel handles GET /model requests.
func (h *ModelHandler) HandleModel(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	m, err := h.deps.Model(r.Context())
	if err != nil {
		writeReadError(w, "api.model", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "", nil)
	return false
}

func writeReadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, types.ErrNoArtifact) {
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", "", NewKind(op, ErrInternal))
}
