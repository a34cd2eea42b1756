package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/pipeline"
	"github.com/permitlink/internal/store"
)

const maxPageSize = 500

// Handler serves the API routes.
type Handler struct {
	Properties *store.PropertyStore
	Permits    *store.PermitStore
	Runs       *store.RunStore
	Pipeline   *pipeline.Service
	Logger     *zap.Logger
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	j := model.Jurisdiction{
		State:  r.URL.Query().Get("state"),
		County: r.URL.Query().Get("county"),
	}
	if j.State == "" || j.County == "" {
		writeError(w, http.StatusBadRequest, "state and county query parameters are required")
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)

	properties, err := h.Properties.List(r.Context(), j, limit, offset)
	if err != nil {
		h.serverError(w, "failed to list properties", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jurisdiction": j,
		"count":        len(properties),
		"properties":   properties,
	})
}

func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	rec, err := h.Properties.GetByID(r.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	if err != nil {
		h.serverError(w, "failed to load property", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListPropertyPermits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	permits, err := h.Permits.ListByProperty(r.Context(), id)
	if err != nil {
		h.serverError(w, "failed to list permits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"property_id": id,
		"count":       len(permits),
		"permits":     permits,
	})
}

func (h *Handler) GetPermit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	rec, err := h.Permits.GetByID(r.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "permit not found")
		return
	}
	if err != nil {
		h.serverError(w, "failed to load permit", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// LinkReport triggers a linking pass for one jurisdiction and returns
// the tier breakdown.
func (h *Handler) LinkReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	j := model.Jurisdiction{State: vars["state"], County: vars["county"]}

	report, err := h.Pipeline.Link(r.Context(), j)
	if err != nil {
		h.serverError(w, "linking pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) JurisdictionStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	j := model.Jurisdiction{State: vars["state"], County: vars["county"]}

	properties, err := h.Properties.CountActive(r.Context(), j)
	if err != nil {
		h.serverError(w, "failed to count properties", err)
		return
	}
	unlinked, err := h.Permits.CountUnlinked(r.Context(), j)
	if err != nil {
		h.serverError(w, "failed to count permits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jurisdiction":      j,
		"active_properties": properties,
		"unlinked_permits":  unlinked,
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	runs, err := h.Runs.Recent(r.Context(), limit)
	if err != nil {
		h.serverError(w, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.Logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
