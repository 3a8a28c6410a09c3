package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/storage"
)

// HandleListRecords handles GET /v1/records.
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	records, total, err := h.store.ListAnalysisRecords(r.Context(), limit, offset)
	if err != nil {
		h.writeInternalError(w, r, "list analysis records", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.RecordList{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// HandleGetRecord handles GET /v1/records/{request_key}.
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("request_key")
	rec, err := h.store.GetAnalysisRecord(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "analysis record not found")
			return
		}
		h.writeInternalError(w, r, "get analysis record", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleListSamples handles GET /v1/datasets/{dataset_id}/samples.
func (h *Handlers) HandleListSamples(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")
	limit, offset := listParams(r)
	samples, total, err := h.store.ListDatasetSamples(r.Context(), datasetID, limit, offset)
	if err != nil {
		h.writeInternalError(w, r, "list dataset samples", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.SampleList{
		Samples: samples,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// listParams reads limit and offset query parameters with bounds.
// Out-of-range or malformed values fall back to the defaults.
func listParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
