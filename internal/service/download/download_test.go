package download_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/service/download"
)

type fakeStore struct {
	records []model.AnalysisRecord
	err     error
}

func (f *fakeStore) UpsertAnalysisRecord(_ context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error) {
	if f.err != nil {
		return model.AnalysisRecord{}, f.err
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExecuteDownloadsVideo(t *testing.T) {
	body := []byte("not really an mp4")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := &fakeStore{}
	svc := download.New(t.TempDir(), store, testLogger())

	out, err := svc.Execute(context.Background(), map[string]any{
		model.FieldID:      "req-1",
		model.FieldVariant: "direct_message",
		model.FieldData: map[string]any{
			model.FieldVideoURL:  srv.URL + "/reel.mp4",
			model.FieldUserID:    "user-9",
			model.FieldVideoText: "legenda",
		},
	})
	require.NoError(t, err)

	data, ok := out[model.FieldData].(map[string]any)
	require.True(t, ok)
	path, ok := data[model.FieldVideoPath].(string)
	require.True(t, ok)
	assert.Equal(t, "req-1.mp4", filepath.Base(path))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, written)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "req-1", rec.RequestKey)
	assert.Equal(t, model.VariantDirectMessage, rec.Variant)
	assert.Equal(t, srv.URL+"/reel.mp4", rec.VideoURL)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, "user-9", *rec.UserID)
	require.NotNil(t, rec.VideoText)
	assert.Equal(t, "legenda", *rec.VideoText)
}

func TestExecuteRejectsMissingFields(t *testing.T) {
	svc := download.New(t.TempDir(), &fakeStore{}, testLogger())

	_, err := svc.Execute(context.Background(), map[string]any{
		model.FieldID:   "req-1",
		model.FieldData: map[string]any{},
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidPayload)

	_, err = svc.Execute(context.Background(), map[string]any{
		model.FieldData: map[string]any{model.FieldVideoURL: "https://example.com/v.mp4"},
	})
	assert.ErrorIs(t, err, pipeline.ErrInvalidPayload)
}

func TestExecuteFailsOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := download.New(t.TempDir(), &fakeStore{}, testLogger())
	_, err := svc.Execute(context.Background(), map[string]any{
		model.FieldID:   "req-2",
		model.FieldData: map[string]any{model.FieldVideoURL: srv.URL},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.NotErrorIs(t, err, pipeline.ErrInvalidPayload)
}

func TestExecuteFailsWhenStoreFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	boom := errors.New("database down")
	svc := download.New(t.TempDir(), &fakeStore{err: boom}, testLogger())
	_, err := svc.Execute(context.Background(), map[string]any{
		model.FieldID:   "req-3",
		model.FieldData: map[string]any{model.FieldVideoURL: srv.URL},
	})
	assert.ErrorIs(t, err, boom)
}
