// Package shopify реализует клиент торговой платформы: поиск вариантов
// по SKU и полную перезапись позиций черновика заказа.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/salesync-system/internal/batch"
)

const (
	apiVersion = "2024-01"

	// Лимит на размер одной группы поиска вариантов.
	variantPageSize = 50
)

// ErrVariantNotFound возвращается, когда вариант с указанным SKU
// отсутствует на платформе.
var ErrVariantNotFound = errors.New("shopify: variant not found")

// OrderSyncError описывает неуспешный ответ торговой платформы.
type OrderSyncError struct {
	Status int
	Body   string
}

func (e *OrderSyncError) Error() string {
	return fmt.Sprintf("shopify: status %d: %s", e.Status, e.Body)
}

// OrderLine описывает одну позицию черновика заказа для перезаписи.
type OrderLine struct {
	VariantID int64
	Quantity  int
	Discount  decimal.Decimal
}

// OrderSyncResult описывает итог обновления черновика заказа.
type OrderSyncResult struct {
	DraftOrderID int64
	Name         string
	InvoiceURL   string
}

// Client инкапсулирует HTTP-взаимодействие с admin API торговой платформы.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент торговой платформы по адресу магазина.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 15 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// LookupVariants находит идентификаторы вариантов по SKU, группами через
// пакетное чтение. Отсутствие любого SKU — ошибка: перезапись черновика
// требует полного набора вариантов.
func (c *Client) LookupVariants(ctx context.Context, skus []string) (map[string]int64, error) {
	results, err := batch.Read(ctx, skus, variantPageSize, c.fetchVariants)
	if err != nil {
		return nil, fmt.Errorf("lookup variants: %w", err)
	}

	variants := make(map[string]int64, len(results))
	for sku, r := range results {
		if r.Missing() {
			if errors.Is(r.Err, batch.ErrAbsent) {
				return nil, fmt.Errorf("%w: sku %q", ErrVariantNotFound, sku)
			}
			return nil, fmt.Errorf("lookup variant %q: %w", sku, r.Err)
		}
		variants[sku] = r.Value
	}

	return variants, nil
}

// fetchVariants загружает одну группу SKU через GraphQL-поиск вариантов.
func (c *Client) fetchVariants(ctx context.Context, skus []string) (map[string]int64, error) {
	terms := make([]string, 0, len(skus))
	for _, sku := range skus {
		terms = append(terms, fmt.Sprintf("sku:%q", sku))
	}

	query := `query($q: String!, $n: Int!) {
  productVariants(first: $n, query: $q) {
    edges { node { legacyResourceId sku } }
  }
}`

	body := map[string]any{
		"query": query,
		"variables": map[string]any{
			"q": strings.Join(terms, " OR "),
			"n": len(skus),
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/admin/api/"+apiVersion+"/graphql.json", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			ProductVariants struct {
				Edges []struct {
					Node struct {
						LegacyResourceID int64  `json:"legacyResourceId,string"`
						SKU              string `json:"sku"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"productVariants"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("shopify: graphql: %s", parsed.Errors[0].Message)
	}

	variants := make(map[string]int64, len(parsed.Data.ProductVariants.Edges))
	for _, e := range parsed.Data.ProductVariants.Edges {
		variants[e.Node.SKU] = e.Node.LegacyResourceID
	}

	return variants, nil
}

// SyncOrder перезаписывает весь список позиций черновика заказа одним вызовом.
// Частичное обновление не поддерживается: при ошибке черновик остаётся
// в прежнем состоянии.
func (c *Client) SyncOrder(ctx context.Context, draftOrderID int64, lines []OrderLine) (*OrderSyncResult, error) {
	lineItems := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		item := map[string]any{
			"variant_id": l.VariantID,
			"quantity":   l.Quantity,
		}
		if l.Discount.IsPositive() {
			item["applied_discount"] = map[string]any{
				"value_type": "percentage",
				"value":      l.Discount.String(),
			}
		}
		lineItems = append(lineItems, item)
	}

	body := map[string]any{
		"draft_order": map[string]any{"line_items": lineItems},
	}

	path := fmt.Sprintf("/admin/api/%s/draft_orders/%d.json", apiVersion, draftOrderID)
	resp, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		DraftOrder struct {
			ID         int64  `json:"id"`
			Name       string `json:"name"`
			InvoiceURL string `json:"invoice_url"`
		} `json:"draft_order"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("decode draft order: %w", err)
	}

	c.logger.Info("draft order updated",
		zap.Int64("draftOrder", draftOrderID),
		zap.Int("lines", len(lines)))

	return &OrderSyncResult{
		DraftOrderID: parsed.DraftOrder.ID,
		Name:         parsed.DraftOrder.Name,
		InvoiceURL:   parsed.DraftOrder.InvoiceURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &OrderSyncError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
