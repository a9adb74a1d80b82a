package controller

import (
	"time"

	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/service"
)

// --- Request DTOs ---

// CheckoutRequest is the body of POST /api/v1/checkout. UserID is ignored
// when the request is authenticated.
type CheckoutRequest struct {
	UserID          string `json:"user_id" validate:"omitempty,max=128"`
	ShippingAddress string `json:"shipping_address" validate:"omitempty,max=500"`
}

// --- Response DTOs ---

type CheckoutResponse struct {
	SessionID   string  `json:"session_id"`
	RedirectURL string  `json:"redirect_url"`
	OrderID     *string `json:"order_id,omitempty"`
	Total       string  `json:"total"`
	Currency    string  `json:"currency"`
}

type OrderResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookAck is returned to the processor for every acknowledged delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --- Converters ---

func toCheckoutResponse(resp *service.CheckoutResponse) CheckoutResponse {
	out := CheckoutResponse{
		SessionID:   resp.SessionID,
		RedirectURL: resp.RedirectURL,
		Total:       resp.Total.StringFixed(2),
		Currency:    resp.Currency,
	}
	if resp.OrderID != nil {
		id := resp.OrderID.String()
		out.OrderID = &id
	}
	return out
}

func toOrderResponse(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID.String(),
		SessionID: o.SessionID,
		Status:    string(o.Status),
		Total:     o.Total.StringFixed(2),
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}
