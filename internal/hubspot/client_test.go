package hubspot

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/salesync-system/internal/model"
)

type gatewayCall struct {
	method string
	path   string
	body   any
}

type stubGateway struct {
	calls   []gatewayCall
	respond func(method, path string, body any) ([]byte, error)
}

func (s *stubGateway) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	s.calls = append(s.calls, gatewayCall{method: method, path: path, body: body})
	return s.respond(method, path, body)
}

func inputsOf(t *testing.T, body any) []map[string]any {
	t.Helper()

	m, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("body is not a map: %T", body)
	}
	inputs, ok := m["inputs"].([]map[string]any)
	if !ok {
		t.Fatalf("inputs missing or of unexpected type: %T", m["inputs"])
	}
	return inputs
}

func TestUpdateQuoteStatus(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		return []byte(`{}`), nil
	}}
	c := NewClient(gw, nil)

	if err := c.UpdateQuoteStatus(context.Background(), "Q1", model.QuoteStatusDraft); err != nil {
		t.Fatalf("UpdateQuoteStatus error: %v", err)
	}

	if len(gw.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(gw.calls))
	}
	call := gw.calls[0]
	if call.method != http.MethodPatch || call.path != "/crm/v3/objects/quotes/Q1" {
		t.Fatalf("unexpected call: %s %s", call.method, call.path)
	}

	props := call.body.(map[string]any)["properties"].(map[string]string)
	if props["hs_status"] != "DRAFT" {
		t.Fatalf("hs_status = %q, want DRAFT", props["hs_status"])
	}
}

func TestGetQuote(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		return []byte(`{
			"id": "Q1",
			"properties": {
				"hs_status": "APPROVED",
				"hs_quote_amount": "199.90",
				"hs_quote_link": "https://quotes.example/Q1",
				"hs_pdf_download_link": "https://quotes.example/Q1.pdf"
			}
		}`), nil
	}}
	c := NewClient(gw, nil)

	q, err := c.GetQuote(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("GetQuote error: %v", err)
	}

	if q.ID != "Q1" || q.Status != model.QuoteStatusApproved {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if !q.Amount.Equal(decimal.RequireFromString("199.90")) {
		t.Fatalf("amount = %s, want 199.90", q.Amount)
	}
	if q.ViewLink != "https://quotes.example/Q1" || q.PDFLink != "https://quotes.example/Q1.pdf" {
		t.Fatalf("unexpected links: %+v", q)
	}
}

func TestDetachLineItemsEmptyIsNoop(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		t.Fatal("gateway must not be called for empty detach")
		return nil, nil
	}}
	c := NewClient(gw, nil)

	if err := c.DetachLineItems(context.Background(), "Q1", nil); err != nil {
		t.Fatalf("DetachLineItems error: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("calls = %d, want 0", len(gw.calls))
	}
}

func TestCreateLineItemsReturnsIDs(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		return []byte(`{"results": [{"id": "LI3", "properties": {}}, {"id": "LI4", "properties": {}}]}`), nil
	}}
	c := NewClient(gw, nil)

	descriptors := []model.LineItemDescriptor{
		{ProductID: "P1", Name: "Widget", SKU: "A", Quantity: 2, Price: decimal.NewFromInt(100)},
		{ProductID: "P2", Name: "Gadget", SKU: "B", Quantity: 1, Price: decimal.NewFromInt(50)},
	}

	ids, err := c.CreateLineItems(context.Background(), "D1", descriptors)
	if err != nil {
		t.Fatalf("CreateLineItems error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "LI3" || ids[1] != "LI4" {
		t.Fatalf("ids = %v, want [LI3 LI4]", ids)
	}

	inputs := inputsOf(t, gw.calls[0].body)
	if len(inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(inputs))
	}

	props := inputs[0]["properties"].(map[string]string)
	if props["hs_sku"] != "A" || props["quantity"] != "2" || props["price"] != "100" {
		t.Fatalf("unexpected properties: %v", props)
	}
}

func TestBatchReadLineItems(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		return []byte(`{"results": [
			{"id": "LI1", "properties": {
				"name": "Widget", "hs_sku": "A", "quantity": "2",
				"price": "100", "hs_discount_percentage": "10", "hs_product_id": "P1"
			}}
		]}`), nil
	}}
	c := NewClient(gw, nil)

	results, err := c.BatchReadLineItems(context.Background(), []string{"LI1"})
	if err != nil {
		t.Fatalf("BatchReadLineItems error: %v", err)
	}

	r := results["LI1"]
	if r.Missing() {
		t.Fatalf("LI1 unexpectedly missing: %v", r.Err)
	}
	item := r.Value
	if item.SKU != "A" || item.Quantity != 2 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if !item.Price.Equal(decimal.NewFromInt(100)) || !item.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected money fields: %+v", item)
	}
}

func TestBatchReadLineItemsPartialFailure(t *testing.T) {
	gw := &stubGateway{respond: func(method, path string, body any) ([]byte, error) {
		return nil, errors.New("remote failure")
	}}
	c := NewClient(gw, nil)

	results, err := c.BatchReadLineItems(context.Background(), []string{"LI1", "LI2"})
	if err == nil {
		t.Fatal("expected partial failure error")
	}

	if !results["LI1"].Missing() || !results["LI2"].Missing() {
		t.Fatalf("expected both ids missing, got %+v", results)
	}
}
