package hubspot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/model"
)

// Фазы сверки позиций. Порядок фиксирован: сначала отсоединение старых
// позиций, затем создание новых, затем присоединение созданных.
const (
	PhaseDetach = "detach"
	PhaseCreate = "create"
	PhaseAttach = "attach"
)

// ReconcileError описывает сбой сверки позиций с указанием фазы,
// на которой она остановилась.
type ReconcileError struct {
	Phase string
	Err   error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Phase, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// ReconcileResult описывает итог сверки: сколько старых позиций отсоединено
// и какие новые созданы и присоединены.
type ReconcileResult struct {
	RemovedCount int
	AddedIDs     []string
}

// Reconcile приводит набор позиций котировки к новому составу:
// отсоединяет старые позиции, создаёт новые под родительской сделкой
// и присоединяет их к котировке.
//
// Если создание удалось, а присоединение нет, новые позиции остаются в CRM
// без ассоциации с котировкой. Автоматического отката нет: повторный запуск
// сверки безопасен, а осиротевшие позиции ни к чему не привязаны.
func (c *Client) Reconcile(ctx context.Context, quoteID, dealID string, oldIDs []string, descriptors []model.LineItemDescriptor) (*ReconcileResult, error) {
	if err := c.DetachLineItems(ctx, quoteID, oldIDs); err != nil {
		return nil, &ReconcileError{Phase: PhaseDetach, Err: err}
	}

	addedIDs, err := c.CreateLineItems(ctx, dealID, descriptors)
	if err != nil {
		return nil, &ReconcileError{Phase: PhaseCreate, Err: err}
	}

	if err := c.AttachLineItems(ctx, quoteID, addedIDs); err != nil {
		return nil, &ReconcileError{Phase: PhaseAttach, Err: err}
	}

	c.logger.Info("line items reconciled",
		zap.String("quote", quoteID),
		zap.Int("removed", len(oldIDs)),
		zap.Int("added", len(addedIDs)))

	return &ReconcileResult{
		RemovedCount: len(oldIDs),
		AddedIDs:     addedIDs,
	}, nil
}
