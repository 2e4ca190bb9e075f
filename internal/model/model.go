// Package model содержит доменные сущности сервиса синхронизации котировок.
package model

import "github.com/shopspring/decimal"

// QuoteStatus описывает статус согласования котировки в CRM.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusApproval QuoteStatus = "APPROVAL"
	QuoteStatusApproved QuoteStatus = "APPROVED"
)

// Quote представляет котировку в CRM вместе со ссылками на её внешнее представление.
type Quote struct {
	ID       string
	Status   QuoteStatus
	Amount   decimal.Decimal
	ViewLink string
	PDFLink  string
}

// LineItem описывает позицию котировки, созданную в CRM.
// Позиции никогда не изменяются на месте: при каждой синхронизации
// старые удаляются и создаются новые.
type LineItem struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	Quantity  int
	Price     decimal.Decimal
	Discount  decimal.Decimal
	ImageURL  string
}

// LineItemDescriptor описывает новую позицию из запроса синхронизации,
// ещё не созданную в CRM.
type LineItemDescriptor struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Discount  decimal.Decimal `json:"discount"`
	ImageURL  string          `json:"image_url,omitempty"`
}
