package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/progress"
	"github.com/mmeshcher/salesync-system/internal/repository"
	"github.com/mmeshcher/salesync-system/internal/service"
)

type stubService struct {
	syncedRequests []service.SyncRequest

	runsResp []repository.SyncRun
	runsErr  error
}

func (s *stubService) SyncQuote(ctx context.Context, req service.SyncRequest, sink progress.Sink) {
	s.syncedRequests = append(s.syncedRequests, req)
	sink.Progress("quote moved to draft", 10, "")
	sink.Complete(true, "https://quotes.example/Q1", "https://quotes.example/Q1.pdf", "run-1")
}

func (s *stubService) RecentRuns(ctx context.Context, limit int) ([]repository.SyncRun, error) {
	return s.runsResp, s.runsErr
}

func newTestHandler(s *stubService) *Handler {
	return NewHandler(s, zap.NewNop())
}

const validSyncBody = `{
	"deal_id": "D1",
	"old_line_item_ids": ["LI1", "LI2"],
	"line_items": [
		{"product_id": "P1", "name": "Widget", "sku": "A", "quantity": 2, "price": 100, "discount": 0}
	],
	"draft_order_id": 555
}`

func TestSyncQuoteStreamsEvents(t *testing.T) {
	svc := &stubService{}
	router := newTestHandler(svc).SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/quotes/Q1/sync", strings.NewReader(validSyncBody))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: progress\ndata: ") {
		t.Fatalf("progress frame missing in body:\n%s", body)
	}
	if !strings.Contains(body, "event: complete\ndata: ") {
		t.Fatalf("complete frame missing in body:\n%s", body)
	}
	if !strings.Contains(body, `"run_id":"run-1"`) {
		t.Fatalf("run id missing in body:\n%s", body)
	}

	if len(svc.syncedRequests) != 1 {
		t.Fatalf("synced requests = %d, want 1", len(svc.syncedRequests))
	}
	got := svc.syncedRequests[0]
	if got.QuoteID != "Q1" || got.DealID != "D1" || got.DraftOrderID != 555 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.OldLineItemIDs) != 2 || len(got.NewLineItems) != 1 {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestSyncQuoteBadJSON(t *testing.T) {
	router := newTestHandler(&stubService{}).SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/quotes/Q1/sync", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncQuoteMissingFields(t *testing.T) {
	router := newTestHandler(&stubService{}).SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/quotes/Q1/sync",
		strings.NewReader(`{"deal_id": "D1", "line_items": [], "draft_order_id": 555}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSyncQuoteInvalidDescriptor(t *testing.T) {
	router := newTestHandler(&stubService{}).SetupRouter()

	body := `{
		"deal_id": "D1",
		"line_items": [{"product_id": "P1", "sku": "A", "quantity": 0, "price": 100}],
		"draft_order_id": 555
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/quotes/Q1/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestGetRunsEmpty(t *testing.T) {
	router := newTestHandler(&stubService{}).SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/sync/runs", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestGetRuns(t *testing.T) {
	errMsg := "updating draft order: boom"
	finished := time.Now()

	svc := &stubService{runsResp: []repository.SyncRun{
		{
			ID:         "run-1",
			QuoteID:    "Q1",
			Status:     repository.RunStatusFailed,
			Error:      &errMsg,
			StartedAt:  finished.Add(-time.Minute),
			FinishedAt: &finished,
		},
	}}
	router := newTestHandler(svc).SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/sync/runs", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"id":"run-1"`) || !strings.Contains(body, `"status":"FAILED"`) {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestHealth(t *testing.T) {
	router := newTestHandler(&stubService{}).SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
