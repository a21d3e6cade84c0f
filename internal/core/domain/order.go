package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses that count towards a closure.
const (
	OrderStatusCompleted = "completed"
	OrderStatusPaid      = "paid"
)

// OrderItem is a line of an order. Price is VAT-inclusive per unit.
type OrderItem struct {
	ProductName string    `json:"productName,omitempty"`
	Price       RawAmount `json:"price"`
	Quantity    RawAmount `json:"quantity"`
	VATRate     RawAmount `json:"vatRate"` // Percentage; absent means the default rate
}

// Order is the read-only record supplied by the order collaborator.
type Order struct {
	ID            int64       `json:"id"`
	TotalAmount   RawAmount   `json:"totalAmount"`
	TotalTax      RawAmount   `json:"totalTax"`
	TaxAmount     RawAmount   `json:"taxAmount"` // Legacy field, used when TotalTax is absent
	PaymentMethod string      `json:"paymentMethod"`
	Items         []OrderItem `json:"items"`
	Tips          RawAmount   `json:"tips"`
	Change        RawAmount   `json:"change"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`

	undecodedItems json.RawMessage
}

// SetItemsJSON decodes a stored items document. A document that does not
// decode is kept so that Parse reports it against this order.
func (o *Order) SetItemsJSON(raw []byte) {
	o.Items = nil
	o.undecodedItems = nil
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}
	if err := json.Unmarshal(raw, &o.Items); err != nil {
		o.Items = nil
		o.undecodedItems = append(json.RawMessage(nil), raw...)
	}
}

// IsSettled reports whether the order status counts towards closures.
func (o Order) IsSettled() bool {
	switch strings.ToLower(o.Status) {
	case OrderStatusCompleted, OrderStatusPaid:
		return true
	}
	return false
}

// ParsedItem is an OrderItem with typed amounts.
type ParsedItem struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	VATRate  decimal.Decimal
	HasRate  bool
}

// Total is price times quantity.
func (i ParsedItem) Total() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

// ParsedOrder is an Order whose monetary fields have all been parsed.
type ParsedOrder struct {
	ID            int64
	TotalAmount   decimal.Decimal
	TotalTax      decimal.Decimal
	PaymentMethod string
	Items         []ParsedItem
	Tips          decimal.Decimal
	Change        decimal.Decimal
	CreatedAt     time.Time
}

// Parse converts every monetary field of the order, failing on the first
// malformed one.
func (o Order) Parse() (ParsedOrder, error) {
	p := ParsedOrder{ID: o.ID, PaymentMethod: o.PaymentMethod, CreatedAt: o.CreatedAt}
	var err error
	if p.TotalAmount, err = o.TotalAmount.Parse(); err != nil {
		return ParsedOrder{}, fmt.Errorf("order %d total_amount: %w", o.ID, err)
	}
	tax := o.TotalTax
	if tax.IsZero() {
		tax = o.TaxAmount
	}
	if p.TotalTax, err = tax.Parse(); err != nil {
		return ParsedOrder{}, fmt.Errorf("order %d total_tax: %w", o.ID, err)
	}
	if p.Tips, err = o.Tips.Parse(); err != nil {
		return ParsedOrder{}, fmt.Errorf("order %d tips: %w", o.ID, err)
	}
	if p.Change, err = o.Change.Parse(); err != nil {
		return ParsedOrder{}, fmt.Errorf("order %d change: %w", o.ID, err)
	}
	if o.undecodedItems != nil {
		var items []OrderItem
		if err := json.Unmarshal(o.undecodedItems, &items); err != nil {
			return ParsedOrder{}, fmt.Errorf("order %d items: %w", o.ID, err)
		}
		return ParsedOrder{}, fmt.Errorf("order %d items: malformed document", o.ID)
	}
	for idx, it := range o.Items {
		price, err := it.Price.Parse()
		if err != nil {
			return ParsedOrder{}, fmt.Errorf("order %d item %d price: %w", o.ID, idx, err)
		}
		quantity, err := it.Quantity.Parse()
		if err != nil {
			return ParsedOrder{}, fmt.Errorf("order %d item %d quantity: %w", o.ID, idx, err)
		}
		item := ParsedItem{Price: price, Quantity: quantity}
		if !it.VATRate.IsZero() {
			if item.VATRate, err = it.VATRate.Parse(); err != nil {
				return ParsedOrder{}, fmt.Errorf("order %d item %d vat_rate: %w", o.ID, idx, err)
			}
			if item.VATRate.IsNegative() {
				return ParsedOrder{}, fmt.Errorf("order %d item %d vat_rate: negative rate %s", o.ID, idx, item.VATRate)
			}
			item.HasRate = true
		}
		p.Items = append(p.Items, item)
	}
	return p, nil
}
