package testutil

import (
	"time"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewTestItem(name, price string, qty int64) cart.Item {
	return cart.Item{
		ProductID:   uuid.New(),
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	}
}

// PhoneRepairCart is a Screen at 49.99 x2 and a Battery at 19.99 x1: total
// 119.97, unit amounts 4999 and 1999.
func PhoneRepairCart() []cart.Item {
	return []cart.Item{
		NewTestItem("Screen", "49.99", 2),
		NewTestItem("Battery", "19.99", 1),
	}
}

func NewTestOrder(userID, sessionID string, status order.Status) *order.Order {
	now := time.Now().UTC()
	return &order.Order{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Total:     decimal.RequireFromString("119.97"),
		Currency:  "usd",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
