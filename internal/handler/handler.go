// Package handler содержит HTTP-обработчики API сервиса синхронизации.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/model"
	"github.com/mmeshcher/salesync-system/internal/progress"
	"github.com/mmeshcher/salesync-system/internal/repository"
	"github.com/mmeshcher/salesync-system/internal/service"
	"github.com/mmeshcher/salesync-system/internal/validation"
)

// recentRunsLimit — сколько последних запусков отдаёт журнал.
const recentRunsLimit = 50

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SyncQuote(ctx context.Context, req service.SyncRequest, sink progress.Sink)
	RecentRuns(ctx context.Context, limit int) ([]repository.SyncRun, error)
}

// Handler реализует HTTP-обработчики API сервиса синхронизации.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type syncRequest struct {
	DealID         string                     `json:"deal_id"`
	OldLineItemIDs []string                   `json:"old_line_item_ids"`
	LineItems      []model.LineItemDescriptor `json:"line_items"`
	DraftOrderID   int64                      `json:"draft_order_id"`
}

// SyncQuote принимает запрос синхронизации котировки и отдаёт поток
// событий хода выполнения в формате server-sent events. Поток живёт
// до терминального события; закрытие соединения клиентом отменяет запуск.
func (h *Handler) SyncQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := quoteIDFromRequest(r)
	if quoteID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.DealID == "" || req.DraftOrderID == 0 || len(req.LineItems) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateDescriptors(req.LineItems); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	sink, ok := progress.NewSSESink(w)
	if !ok {
		h.logger.Error("streaming unsupported by transport")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.service.SyncQuote(r.Context(), service.SyncRequest{
		QuoteID:        quoteID,
		DealID:         req.DealID,
		OldLineItemIDs: req.OldLineItemIDs,
		NewLineItems:   req.LineItems,
		DraftOrderID:   req.DraftOrderID,
	}, sink)
}

type runResponse struct {
	ID         string  `json:"id"`
	QuoteID    string  `json:"quote_id"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// GetRuns возвращает последние запуски синхронизации из журнала.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.RecentRuns(r.Context(), recentRunsLimit)
	if err != nil {
		h.logger.Error("get sync runs error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(runs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		item := runResponse{
			ID:        run.ID,
			QuoteID:   run.QuoteID,
			Status:    string(run.Status),
			Error:     run.Error,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if run.FinishedAt != nil {
			finished := run.FinishedAt.Format(time.RFC3339)
			item.FinishedAt = &finished
		}
		resp = append(resp, item)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// Health отвечает на проверку живости сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
