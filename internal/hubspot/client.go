// Package hubspot реализует операции с объектами CRM поверх шлюза
// с ограничением темпа запросов.
package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/batch"
	"github.com/mmeshcher/salesync-system/internal/model"
)

// Идентификаторы типов ассоциаций HubSpot. Отсоединение и присоединение
// используют разные типы и не взаимозаменяемы.
const (
	assocQuoteToLineItem = 67
	assocLineItemToDeal  = 20
)

// batchPageSize — лимит провайдера на размер одной группы batch-чтения.
const batchPageSize = 100

var lineItemProperties = []string{
	"name", "hs_sku", "quantity", "price", "hs_discount_percentage", "hs_product_id", "hs_images",
}

// Caller описывает контракт шлюза, через который проходят все вызовы CRM.
type Caller interface {
	Do(ctx context.Context, method, path string, body any) ([]byte, error)
}

// Client выполняет операции с котировками, позициями и ассоциациями в CRM.
type Client struct {
	gw     Caller
	logger *zap.Logger
}

// NewClient создаёт клиент CRM поверх указанного шлюза.
func NewClient(gw Caller, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gw: gw, logger: logger}
}

type propertiesEnvelope struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type batchResponse struct {
	Status  string               `json:"status"`
	Results []propertiesEnvelope `json:"results"`
}

// UpdateQuoteStatus переводит котировку в указанный статус.
func (c *Client) UpdateQuoteStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error {
	body := map[string]any{
		"properties": map[string]string{"hs_status": string(status)},
	}

	_, err := c.gw.Do(ctx, http.MethodPatch, "/crm/v3/objects/quotes/"+quoteID, body)
	if err != nil {
		return fmt.Errorf("update quote %s status: %w", quoteID, err)
	}

	return nil
}

// GetQuote читает котировку вместе со ссылками на её внешнее представление.
func (c *Client) GetQuote(ctx context.Context, quoteID string) (*model.Quote, error) {
	path := "/crm/v3/objects/quotes/" + quoteID +
		"?properties=hs_status,hs_quote_amount,hs_quote_link,hs_pdf_download_link"

	resp, err := c.gw.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", quoteID, err)
	}

	var env propertiesEnvelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", quoteID, err)
	}

	amount, _ := decimal.NewFromString(env.Properties["hs_quote_amount"])

	return &model.Quote{
		ID:       env.ID,
		Status:   model.QuoteStatus(env.Properties["hs_status"]),
		Amount:   amount,
		ViewLink: env.Properties["hs_quote_link"],
		PDFLink:  env.Properties["hs_pdf_download_link"],
	}, nil
}

// DetachLineItems удаляет ассоциации котировка-позиция для указанных позиций.
// Пустой список — no-op.
func (c *Client) DetachLineItems(ctx context.Context, quoteID string, lineItemIDs []string) error {
	if len(lineItemIDs) == 0 {
		return nil
	}

	inputs := make([]map[string]any, 0, len(lineItemIDs))
	for _, id := range lineItemIDs {
		inputs = append(inputs, map[string]any{
			"from": map[string]string{"id": quoteID},
			"to":   []map[string]string{{"id": id}},
		})
	}

	_, err := c.gw.Do(ctx, http.MethodPost,
		"/crm/v4/associations/quotes/line_items/batch/archive",
		map[string]any{"inputs": inputs})
	if err != nil {
		return fmt.Errorf("detach %d line items from quote %s: %w", len(lineItemIDs), quoteID, err)
	}

	return nil
}

// CreateLineItems создаёт новые позиции под родительской сделкой
// и возвращает их идентификаторы в порядке создания.
func (c *Client) CreateLineItems(ctx context.Context, dealID string, descriptors []model.LineItemDescriptor) ([]string, error) {
	inputs := make([]map[string]any, 0, len(descriptors))
	for _, d := range descriptors {
		inputs = append(inputs, map[string]any{
			"properties": map[string]string{
				"name":                   d.Name,
				"hs_sku":                 d.SKU,
				"quantity":               strconv.Itoa(d.Quantity),
				"price":                  d.Price.String(),
				"hs_discount_percentage": d.Discount.String(),
				"hs_product_id":          d.ProductID,
				"hs_images":              d.ImageURL,
			},
			"associations": []map[string]any{
				{
					"to": map[string]string{"id": dealID},
					"types": []map[string]any{
						{"associationCategory": "HUBSPOT_DEFINED", "associationTypeId": assocLineItemToDeal},
					},
				},
			},
		})
	}

	resp, err := c.gw.Do(ctx, http.MethodPost,
		"/crm/v3/objects/line_items/batch/create",
		map[string]any{"inputs": inputs})
	if err != nil {
		return nil, fmt.Errorf("create %d line items for deal %s: %w", len(descriptors), dealID, err)
	}

	var created batchResponse
	if err := json.Unmarshal(resp, &created); err != nil {
		return nil, fmt.Errorf("decode created line items: %w", err)
	}

	ids := make([]string, 0, len(created.Results))
	for _, r := range created.Results {
		ids = append(ids, r.ID)
	}

	return ids, nil
}

// AttachLineItems создаёт ассоциации котировка-позиция для указанных позиций.
func (c *Client) AttachLineItems(ctx context.Context, quoteID string, lineItemIDs []string) error {
	if len(lineItemIDs) == 0 {
		return nil
	}

	inputs := make([]map[string]any, 0, len(lineItemIDs))
	for _, id := range lineItemIDs {
		inputs = append(inputs, map[string]any{
			"from": map[string]string{"id": quoteID},
			"to":   map[string]string{"id": id},
			"types": []map[string]any{
				{"associationCategory": "HUBSPOT_DEFINED", "associationTypeId": assocQuoteToLineItem},
			},
		})
	}

	_, err := c.gw.Do(ctx, http.MethodPost,
		"/crm/v4/associations/quotes/line_items/batch/create",
		map[string]any{"inputs": inputs})
	if err != nil {
		return fmt.Errorf("attach %d line items to quote %s: %w", len(lineItemIDs), quoteID, err)
	}

	return nil
}

// BatchReadLineItems читает позиции группами по batchPageSize.
// Ошибка одной группы не прерывает остальные: результат содержит
// типизированное отсутствие, а вместе с ним возвращается *batch.PartialError.
func (c *Client) BatchReadLineItems(ctx context.Context, ids []string) (map[string]batch.Result[model.LineItem], error) {
	return batch.Read(ctx, ids, batchPageSize, func(ctx context.Context, chunk []string) (map[string]model.LineItem, error) {
		inputs := make([]map[string]string, 0, len(chunk))
		for _, id := range chunk {
			inputs = append(inputs, map[string]string{"id": id})
		}

		resp, err := c.gw.Do(ctx, http.MethodPost,
			"/crm/v3/objects/line_items/batch/read",
			map[string]any{"inputs": inputs, "properties": lineItemProperties})
		if err != nil {
			return nil, err
		}

		var read batchResponse
		if err := json.Unmarshal(resp, &read); err != nil {
			return nil, fmt.Errorf("decode line items: %w", err)
		}

		items := make(map[string]model.LineItem, len(read.Results))
		for _, r := range read.Results {
			items[r.ID] = lineItemFromProperties(r.ID, r.Properties)
		}
		return items, nil
	})
}

func lineItemFromProperties(id string, props map[string]string) model.LineItem {
	price, _ := decimal.NewFromString(props["price"])
	discount, _ := decimal.NewFromString(props["hs_discount_percentage"])

	quantity, _ := strconv.Atoi(props["quantity"])

	return model.LineItem{
		ID:        id,
		ProductID: props["hs_product_id"],
		Name:      props["name"],
		SKU:       props["hs_sku"],
		Quantity:  quantity,
		Price:     price,
		Discount:  discount,
		ImageURL:  props["hs_images"],
	}
}
