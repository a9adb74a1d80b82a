package controller

import (
	"net/http"

	customMW "github.com/cassiomorais/storefront/internal/middleware"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/go-chi/chi/v5"
)

// CheckoutController handles the customer-facing checkout endpoints.
type CheckoutController struct {
	checkout *service.CheckoutService
}

func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// CreateSession handles POST /api/v1/checkout
func (h *CheckoutController) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userID := req.UserID
	if claimed, ok := customMW.GetUserID(r.Context()); ok {
		userID = claimed
	}

	resp, err := h.checkout.CreateSession(r.Context(), service.CheckoutRequest{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toCheckoutResponse(resp))
}

// GetOrderBySession handles GET /api/v1/orders/session/{session_id}
func (h *CheckoutController) GetOrderBySession(w http.ResponseWriter, r *http.Request) {
	userID, _ := customMW.GetUserID(r.Context())

	o, err := h.checkout.OrderBySession(r.Context(), chi.URLParam(r, "session_id"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}
