package server

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/service/dataset"
)

// HandleIngestSample handles POST /v1/datasets/{sample_id}/ingest.
// The run executes synchronously; the response carries its outcome.
func (h *Handlers) HandleIngestSample(w http.ResponseWriter, r *http.Request) {
	sampleID := r.PathValue("sample_id")
	if err := model.ValidateSampleID(sampleID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	res := h.ingestOne(r.Context(), sampleID)
	writeJSON(w, r, http.StatusOK, model.IngestResponse{
		Results: []model.IngestResult{res},
	})
}

// HandleIngestAll handles POST /v1/datasets/ingest: one synchronous run
// per sample found under the dataset dir, bounded-parallel. Results keep
// the samples' lexical order regardless of completion order.
func (h *Handlers) HandleIngestAll(w http.ResponseWriter, r *http.Request) {
	ids, err := dataset.ListSampleIDs(h.datasetDir)
	if err != nil {
		h.writeInternalError(w, r, "list dataset samples", err)
		return
	}

	results := make([]model.IngestResult, len(ids))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.ingestConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = h.ingestOne(ctx, id)
			return nil
		})
	}
	// Group funcs never return errors; failures land in the result list.
	_ = g.Wait()

	writeJSON(w, r, http.StatusOK, model.IngestResponse{Results: results})
}

// ingestOne drives a single DatasetCloud run to completion. The sample id
// doubles as the request key so re-ingesting updates the same records.
func (h *Handlers) ingestOne(ctx context.Context, sampleID string) model.IngestResult {
	payload := map[string]any{
		model.FieldIdempotencyKey: sampleID,
		model.FieldVideoID:        sampleID,
	}
	if err := h.engine.Run(ctx, model.VariantDatasetCloud, payload); err != nil {
		h.logger.ErrorContext(ctx, "dataset ingest failed", "sample_id", sampleID, "error", err)
		return model.IngestResult{SampleID: sampleID, Status: "failed", Error: err.Error()}
	}
	return model.IngestResult{SampleID: sampleID, Status: "ingested"}
}
