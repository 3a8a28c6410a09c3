package apura

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockServer creates an httptest server that mimics the apura API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected an error for empty BaseURL")
	}
}

func TestGetRecordUnwrapsEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/records/{request_key}": func(w http.ResponseWriter, r *http.Request) {
			if got := r.PathValue("request_key"); got != "mid.abc123" {
				t.Errorf("got request key %q, want mid.abc123", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"request_key": "mid.abc123",
					"variant":     "direct_message",
					"video_url":   "https://cdn.example.com/reel.mp4",
					"claim":       "Vacina causa magnetismo",
					"verdict":     "FAKE",
				},
			})
		},
	})
	defer srv.Close()

	rec, err := newTestClient(t, srv.URL).GetRecord(context.Background(), "mid.abc123")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.RequestKey != "mid.abc123" {
		t.Errorf("got request key %q, want mid.abc123", rec.RequestKey)
	}
	if rec.Claim == nil || *rec.Claim != "Vacina causa magnetismo" {
		t.Errorf("got claim %v, want the extracted claim", rec.Claim)
	}
	if rec.Verdict == nil || *rec.Verdict != VerdictFake {
		t.Errorf("got verdict %v, want FAKE", rec.Verdict)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/records/{request_key}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{
					"code":    "NOT_FOUND",
					"message": "analysis record not found",
				},
			})
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).GetRecord(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NOT_FOUND" {
		t.Errorf("got error %v, want code NOT_FOUND", err)
	}
}

func TestListRecordsSendsPagination(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/records": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("got limit %q, want 10", got)
			}
			if got := r.URL.Query().Get("offset"); got != "20" {
				t.Errorf("got offset %q, want 20", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"records": []map[string]any{{"request_key": "a"}},
					"total":   31,
					"limit":   10,
					"offset":  20,
				},
			})
		},
	})
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).ListRecords(context.Background(), &ListOptions{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if page.Total != 31 || len(page.Records) != 1 {
		t.Errorf("got total=%d records=%d, want 31 and 1", page.Total, len(page.Records))
	}
}

func TestIngestSampleEscapesPath(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/datasets/{sample_id}/ingest": func(w http.ResponseWriter, r *http.Request) {
			if got := r.PathValue("sample_id"); got != "sample one" {
				t.Errorf("got sample id %q, want %q", got, "sample one")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"results": []map[string]any{{"sample_id": "sample one", "status": "ingested"}},
				},
			})
		},
	})
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).IngestSample(context.Background(), "sample one")
	if err != nil {
		t.Fatalf("IngestSample failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Status != "ingested" {
		t.Errorf("got results %+v, want one ingested result", resp.Results)
	}
}

func TestIngestAllReportsFailures(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/datasets/ingest": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"results": []map[string]any{
						{"sample_id": "aaa", "status": "ingested"},
						{"sample_id": "bbb", "status": "failed", "error": "reels_download.failed"},
					},
				},
			})
		},
	})
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).IngestAll(context.Background())
	if err != nil {
		t.Fatalf("IngestAll failed: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[1].Status != "failed" || resp.Results[1].Error == "" {
		t.Errorf("got %+v, want a failed result with an error", resp.Results[1])
	}
}

func TestHealth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /healthz": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"status":      "healthy",
					"version":     "1.2.3",
					"postgres":    "connected",
					"guard":       "badger",
					"active_runs": 2,
				},
			})
		},
	})
	defer srv.Close()

	h, err := newTestClient(t, srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "healthy" || h.Guard != "badger" || h.ActiveRuns != 2 {
		t.Errorf("got %+v, want the reported health fields", h)
	}
}

func TestErrorFallbackOnNonJSONBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /healthz": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Health(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("got %+v, want the raw body as message", apiErr)
	}
}
