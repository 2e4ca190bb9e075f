// Package service реализует оркестратор синхронизации котировки
// с внешними системами.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/hubspot"
	"github.com/mmeshcher/salesync-system/internal/model"
	"github.com/mmeshcher/salesync-system/internal/progress"
	"github.com/mmeshcher/salesync-system/internal/repository"
	"github.com/mmeshcher/salesync-system/internal/shopify"
)

// CRM описывает операции CRM, используемые оркестратором.
type CRM interface {
	UpdateQuoteStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error
	GetQuote(ctx context.Context, quoteID string) (*model.Quote, error)
	Reconcile(ctx context.Context, quoteID, dealID string, oldIDs []string, descriptors []model.LineItemDescriptor) (*hubspot.ReconcileResult, error)
}

// Commerce описывает операции торговой платформы, используемые оркестратором.
type Commerce interface {
	LookupVariants(ctx context.Context, skus []string) (map[string]int64, error)
	SyncOrder(ctx context.Context, draftOrderID int64, lines []shopify.OrderLine) (*shopify.OrderSyncResult, error)
}

// RunRepository описывает журнал запусков синхронизации.
type RunRepository interface {
	CreateRun(ctx context.Context, id, quoteID string) error
	FinishRun(ctx context.Context, id string, status repository.RunStatus, errMessage string) error
	RecentRuns(ctx context.Context, limit int) ([]repository.SyncRun, error)
}

// SyncRequest описывает один запрос синхронизации котировки.
type SyncRequest struct {
	QuoteID        string
	DealID         string
	OldLineItemIDs []string
	NewLineItems   []model.LineItemDescriptor
	DraftOrderID   int64
}

// Service содержит бизнес-логику синхронизации котировок.
type Service struct {
	crm      CRM
	commerce Commerce
	runs     RunRepository
	logger   *zap.Logger
}

// NewService создаёт оркестратор с указанными клиентами внешних систем.
// runs может быть nil: тогда журнал запусков не ведётся.
func NewService(crm CRM, commerce Commerce, runs RunRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		crm:      crm,
		commerce: commerce,
		runs:     runs,
		logger:   logger,
	}
}

// SyncQuote выполняет один запуск синхронизации котировки: фиксированную
// последовательность шагов со строгим порядком. Любая ошибка останавливает
// последовательность без отката уже выполненных шагов; котировка остаётся
// в последнем достигнутом статусе, а вызывающий получает терминальное
// событие ошибки. Ровно одно терминальное событие отправляется всегда.
//
// Контекст проверяется на каждой точке ожидания: закрытие потока событий
// вызывающей стороной отменяет запуск.
func (s *Service) SyncQuote(ctx context.Context, req SyncRequest, sink progress.Sink) {
	runID := uuid.NewString()

	log := s.logger.With(zap.String("run", runID), zap.String("quote", req.QuoteID))
	log.Info("starting quote sync",
		zap.Int("oldItems", len(req.OldLineItemIDs)),
		zap.Int("newItems", len(req.NewLineItems)))

	s.recordStart(ctx, runID, req.QuoteID)

	fail := func(step string, err error) {
		log.Error("quote sync failed", zap.String("step", step), zap.Error(err))
		sink.Error(fmt.Sprintf("%s: %v", step, err))
		s.recordFinish(runID, repository.RunStatusFailed, err.Error())
	}

	// Шаг 1: котировка переводится в черновик на время пересборки позиций.
	if err := s.crm.UpdateQuoteStatus(ctx, req.QuoteID, model.QuoteStatusDraft); err != nil {
		fail("updating quote status", err)
		return
	}
	sink.Progress("quote moved to draft", 10, "")

	// Шаг 2: пересборка позиций котировки.
	result, err := s.crm.Reconcile(ctx, req.QuoteID, req.DealID, req.OldLineItemIDs, req.NewLineItems)
	if err != nil {
		fail("reconciling line items", err)
		return
	}
	sink.Progress("line items reconciled", 40, "")

	// Шаг 3: поиск вариантов торговой платформы для новых позиций.
	skus := make([]string, 0, len(req.NewLineItems))
	for _, d := range req.NewLineItems {
		skus = append(skus, d.SKU)
	}

	variants, err := s.commerce.LookupVariants(ctx, skus)
	if err != nil {
		fail("looking up product variants", err)
		return
	}

	// Шаг 4: полная перезапись позиций черновика заказа.
	lines := make([]shopify.OrderLine, 0, len(req.NewLineItems))
	for _, d := range req.NewLineItems {
		variantID, ok := variants[d.SKU]
		if !ok {
			fail("looking up product variants", fmt.Errorf("no variant for sku %q", d.SKU))
			return
		}
		lines = append(lines, shopify.OrderLine{
			VariantID: variantID,
			Quantity:  d.Quantity,
			Discount:  d.Discount,
		})
	}

	orderResult, err := s.commerce.SyncOrder(ctx, req.DraftOrderID, lines)
	if err != nil {
		fail("updating draft order", err)
		return
	}
	sink.Progress("draft order updated", 80, orderResult.InvoiceURL)

	// Шаг 5: котировка проходит согласование и утверждается.
	if err := s.crm.UpdateQuoteStatus(ctx, req.QuoteID, model.QuoteStatusApproval); err != nil {
		fail("submitting quote for approval", err)
		return
	}
	sink.Progress("quote submitted for approval", 90, "")

	if err := s.crm.UpdateQuoteStatus(ctx, req.QuoteID, model.QuoteStatusApproved); err != nil {
		fail("approving quote", err)
		return
	}

	quote, err := s.crm.GetQuote(ctx, req.QuoteID)
	if err != nil {
		fail("reading quote links", err)
		return
	}
	sink.Progress("quote approved", 95, quote.ViewLink)

	log.Info("quote sync completed",
		zap.Int("removed", result.RemovedCount),
		zap.Int("added", len(result.AddedIDs)))

	sink.Complete(true, quote.ViewLink, quote.PDFLink, runID)
	s.recordFinish(runID, repository.RunStatusCompleted, "")
}

// RecentRuns возвращает последние запуски из журнала.
// Без настроенного журнала список пуст.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]repository.SyncRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.RecentRuns(ctx, limit)
}

// recordStart фиксирует начало запуска в журнале. Журнал ведётся
// по возможности: его ошибка не прерывает синхронизацию.
func (s *Service) recordStart(ctx context.Context, runID, quoteID string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.CreateRun(ctx, runID, quoteID); err != nil {
		s.logger.Warn("create run record", zap.String("run", runID), zap.Error(err))
	}
}

// recordFinish фиксирует итог запуска. Использует фоновый контекст:
// запись должна пройти и после отмены запроса вызывающей стороной.
func (s *Service) recordFinish(runID string, status repository.RunStatus, errMessage string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.FinishRun(context.Background(), runID, status, errMessage); err != nil {
		s.logger.Warn("finish run record", zap.String("run", runID), zap.Error(err))
	}
}
