// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/salesync-system/internal/model"
)

var maxDiscount = decimal.NewFromInt(100)

// Ошибки валидации описания позиции.
var (
	ErrEmptySKU        = errors.New("sku must not be empty")
	ErrEmptyProductID  = errors.New("product id must not be empty")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrInvalidDiscount = errors.New("discount must be between 0 and 100")
)

// ValidateDescriptor проверяет корректность описания одной новой позиции.
func ValidateDescriptor(d model.LineItemDescriptor) error {
	if d.SKU == "" {
		return ErrEmptySKU
	}
	if d.ProductID == "" {
		return ErrEmptyProductID
	}
	if d.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if d.Price.IsNegative() {
		return ErrNegativePrice
	}
	if d.Discount.IsNegative() || d.Discount.GreaterThan(maxDiscount) {
		return ErrInvalidDiscount
	}
	return nil
}

// ValidateDescriptors проверяет все описания позиций запроса синхронизации.
func ValidateDescriptors(descriptors []model.LineItemDescriptor) error {
	for i, d := range descriptors {
		if err := ValidateDescriptor(d); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}
	return nil
}
