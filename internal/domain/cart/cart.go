package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is one cart row joined with its product.
type Item struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal // major units, e.g. 49.99
}

// Snapshot is a point-in-time read of a user's cart.
type Snapshot struct {
	UserID string
	Items  []Item
}

// LineItem is the processor-facing view of a cart row.
type LineItem struct {
	Name       string
	Quantity   int64
	UnitAmount int64 // minor units
}

// IsEmpty reports whether the snapshot has no purchasable items.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Items) == 0
}

// Total is the sum of quantity * unit price in major units, computed exactly.
func (s *Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	if s == nil {
		return total
	}
	for _, it := range s.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total
}

// LineItems converts the snapshot into processor line items, in cart order.
func (s *Snapshot) LineItems() []LineItem {
	if s == nil {
		return nil
	}
	items := make([]LineItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, LineItem{
			Name:       it.ProductName,
			Quantity:   it.Quantity,
			UnitAmount: ToMinorUnits(it.UnitPrice),
		})
	}
	return items
}

// ToMinorUnits converts a major-unit price to minor units, rounding half away
// from zero.
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}
