package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukahub/paybill-core/internal/cart"
	"github.com/dukahub/paybill-core/internal/checkout"
	"github.com/dukahub/paybill-core/internal/daraja"
	"github.com/dukahub/paybill-core/internal/inventory"
	"github.com/dukahub/paybill-core/internal/orders"
)

// userIDHeader is set by the fronting auth gateway; authentication
// itself is outside this service.
const userIDHeader = "X-User-ID"

type CheckoutHandler struct {
	Svc    *checkout.Service
	Orders *orders.Repo
	Carts  *cart.Repo
	Log    *slog.Logger
}

type CheckoutReq struct {
	PhoneNumber     string `json:"phone_number"`
	AccountNumber   string `json:"account_number"`
	DeliveryAddress string `json:"delivery_address"`
}

type CheckoutResp struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	OrderNumber       string `json:"order_number,omitempty"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	TotalCents        int64  `json:"total_cents,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/api/cart/items", h.addCartItem)
	r.Post("/api/checkout", h.doCheckout)
	r.Post("/api/payments/callback", h.mpesaCallback)
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{number}", h.orderDetail)
	r.Get("/api/orders/{number}/payment", h.paymentStatus)
	r.Get("/api/orders/{number}/history", h.orderHistory)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func userID(r *http.Request) string { return r.Header.Get(userIDHeader) }

func (h *CheckoutHandler) doCheckout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, CheckoutResp{Success: false, Error: "authentication required"})
		return
	}

	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, CheckoutResp{Success: false, Error: "invalid json"})
		return
	}

	res, err := h.Svc.Checkout(r.Context(), checkout.CheckoutInput{
		UserID:           uid,
		PhoneNumber:      req.PhoneNumber,
		AccountReference: req.AccountNumber,
		DeliveryAddress:  req.DeliveryAddress,
	})
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CheckoutResp{
		Success:           true,
		Message:           res.CustomerMessage,
		OrderNumber:       res.OrderNumber,
		CheckoutRequestID: res.CheckoutRequestID,
		TotalCents:        res.TotalCents,
	})
}

func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, err error) {
	var ve *checkout.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, CheckoutResp{Success: false, Error: ve.Msg})
		return
	}
	var se *inventory.InsufficientStockError
	if errors.As(err, &se) {
		writeJSON(w, http.StatusConflict, CheckoutResp{Success: false, Error: se.Error()})
		return
	}
	if errors.Is(err, checkout.ErrPaymentInit) {
		// full detail is already logged server-side; keep the reason
		// away from the client
		writeJSON(w, http.StatusBadGateway, CheckoutResp{
			Success: false,
			Error:   "payment could not be initiated, please try again later",
		})
		return
	}
	h.Log.Error("checkout failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, CheckoutResp{Success: false, Error: "internal error"})
}

// mpesaCallback is reachable only by the gateway; trust comes from the
// network allow-list, not from request auth. The response body follows
// the gateway convention: ResultCode 0 acknowledges every logically
// handled outcome, 1 only malformed input or an internal error.
func (h *CheckoutHandler) mpesaCallback(w http.ResponseWriter, r *http.Request) {
	var env daraja.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusOK, daraja.AckError("Invalid callback data"))
		return
	}

	result, err := h.Svc.Reconcile(r.Context(), env.Body.StkCallback)
	if errors.Is(err, checkout.ErrMalformedCallback) {
		writeJSON(w, http.StatusOK, daraja.AckError("Invalid callback data"))
		return
	}
	if err != nil {
		h.Log.Error("callback processing failed",
			"checkout_request_id", env.Body.StkCallback.CheckoutRequestID, "err", err)
		writeJSON(w, http.StatusOK, daraja.AckError("Processing error"))
		return
	}
	h.Log.Info("callback handled",
		"checkout_request_id", env.Body.StkCallback.CheckoutRequestID,
		"result", string(result))
	writeJSON(w, http.StatusOK, daraja.AckAccepted())
}

type PaymentStatusResp struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	View    *checkout.StatusView `json:"payment,omitempty"`
}

func (h *CheckoutHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, PaymentStatusResp{Success: false, Error: "authentication required"})
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	view, err := h.Svc.Status(ctx, number, uid)
	if errors.Is(err, checkout.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, PaymentStatusResp{Success: false, Error: "order not found"})
		return
	}
	if err != nil {
		h.Log.Error("status poll failed", "order", number, "err", err)
		writeJSON(w, http.StatusInternalServerError, PaymentStatusResp{Success: false, Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, PaymentStatusResp{Success: true, View: view})
}

func (h *CheckoutHandler) orderDetail(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Orders.ByNumberForUser(ctx, number, uid)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *CheckoutHandler) orderHistory(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	number := chi.URLParam(r, "number")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// ownership check first; the history table itself is not user-scoped
	if _, err := h.Orders.ByNumberForUser(ctx, number, uid); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	entries, err := h.Orders.History(ctx, number)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *CheckoutHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListForUser(ctx, uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type AddItemReq struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Qty       int     `json:"qty"`
}

func (h *CheckoutHandler) addCartItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req AddItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Qty < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_id and a positive qty are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.AddItem(ctx, uid, req.ProductID, req.VariantID, req.Qty); err != nil {
		h.Log.Error("cart add failed", "user", uid, "product", req.ProductID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *CheckoutHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Orders.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
