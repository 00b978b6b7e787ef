package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type OrdersHandler struct {
	Engine *lifecycle.Service
	Log    *logrus.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/orders", h.createOrder)
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Get("/api/orders/{id}/status", h.getOrderStatus)
	r.Post("/api/orders/{id}/confirm-payment", h.confirmPayment)
	r.Post("/api/orders/{id}/cancel", h.cancelOrder)
	r.Patch("/api/orders/{id}/status", h.setStatus)
}

type createOrderResp struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Message     string `json:"message"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var d orders.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CreateOrder(ctx, d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{
		Success:     true,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Message:     "order created, awaiting payment confirmation",
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	var f orders.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := orders.ParseStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
			return
		}
		f.Status = &st
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Engine.ListOrders(ctx, f, PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, chi.URLParam(r, "id"), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the cheap polling path. Publik: status saja,
// detail order tetap di belakang otorisasi getOrder.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	blob, err := h.Engine.OrderStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blob)
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentNotes string `json:"payment_notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req) // body opsional

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.ConfirmPayment(ctx, chi.URLParam(r, "id"), PrincipalFrom(r.Context()), req.PaymentNotes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  o.Status,
		"message": "payment confirmed and stock committed",
	})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CancelOrder(ctx, chi.URLParam(r, "id"), PrincipalFrom(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  o.Status,
		"message": "order cancelled",
	})
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.SetStatus(ctx, chi.URLParam(r, "id"), PrincipalFrom(r.Context()), orders.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  o.Status,
	})
}
