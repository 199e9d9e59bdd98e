package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/api/middleware"
	"github.com/groshare/groupbuy/internal/domain/order"
	"github.com/groshare/groupbuy/internal/infrastructure/store"
	"github.com/groshare/groupbuy/internal/payment"
	"github.com/groshare/groupbuy/internal/pubsub"
	"github.com/groshare/groupbuy/internal/service"
)

// Handlers is the thin transport glue: it decodes requests, calls the
// lifecycle service, and maps error kinds to responses.
type Handlers struct {
	svc *service.Lifecycle
	hub *pubsub.Hub
	log *logrus.Logger
}

func NewHandlers(svc *service.Lifecycle, hub *pubsub.Hub, log *logrus.Logger) *Handlers {
	return &Handlers{svc: svc, hub: hub, log: log}
}

// Order handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var params service.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	o, err := h.svc.CreateOrder(r.Context(), middleware.GetUserID(r.Context()), params)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Group order created successfully",
		"order":   orderView(o),
	})
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{
		Status:   order.Status(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
		City:     r.URL.Query().Get("city"),
		Area:     r.URL.Query().Get("area"),
	}
	s := store.Sort{
		Field:      r.URL.Query().Get("sortBy"),
		Descending: r.URL.Query().Get("sortOrder") != "asc",
	}
	p := store.Page{
		Number: queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
	}.Normalize()

	h.list(w, r, f, s, p)
}

// UserOrders lists orders the caller organizes or participates in.
func (h *Handlers) UserOrders(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{
		Status: order.Status(r.URL.Query().Get("status")),
		UserID: middleware.GetUserID(r.Context()),
	}
	s := store.Sort{Field: "created_at", Descending: true}
	p := store.Page{
		Number: queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 10),
	}.Normalize()

	h.list(w, r, f, s, p)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, f store.Filter, s store.Sort, p store.Page) {
	items, total, err := h.svc.List(r.Context(), f, s, p)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	views := make([]orderResponse, 0, len(items))
	for _, o := range items {
		views = append(views, orderView(o))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"orders":     views,
		"pagination": newPagination(p.Number, p.Limit, total),
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": orderView(o)})
}

func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var params service.UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	o, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), params)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Order updated successfully",
		"order":   orderView(o),
	})
}

func (h *Handlers) JoinOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	o, err := h.svc.Join(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully joined order",
		"order":   orderView(o),
	})
}

func (h *Handlers) LeaveOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Leave(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully left order",
		"order":   orderView(o),
	})
}

func (h *Handlers) LockOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Lock(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Order locked",
		"order":   orderView(o),
	})
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryTime time.Time `json:"delivery_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	o, err := h.svc.Complete(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.DeliveryTime)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Order completed successfully",
		"order":   orderView(o),
	})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}

// Payment handlers

func (h *Handlers) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID        string          `json:"order_id"`
		Quantity       float64         `json:"quantity"`
		PaymentMethod  string          `json:"payment_method"`
		PaymentDetails payment.Details `json:"payment_details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, o, err := h.svc.ProcessPayment(r.Context(), req.OrderID, middleware.GetUserID(r.Context()),
		req.Quantity, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		if result.Reason != "" {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Payment failed",
				"details": result.Reason,
			})
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":       "Payment processed successfully",
		"paymentResult": result,
		"order":         orderView(o),
	})
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	verification, err := h.svc.VerifyPayment(r.Context(), req.TransactionID, req.PaymentMethod)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	code := http.StatusOK
	if !verification.Verified {
		code = http.StatusBadRequest
	}
	respondJSON(w, code, verification)
}

func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	o, p, err := h.svc.Participation(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"orderId":       o.ID,
		"itemName":      o.ItemName,
		"quantity":      p.Quantity,
		"totalPrice":    p.TotalPrice,
		"paymentStatus": p.PaymentStatus,
		"paymentMethod": p.PaymentMethod,
		"joinedAt":      p.JoinedAt,
	})
}

func (h *Handlers) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"methods": payment.Methods()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
