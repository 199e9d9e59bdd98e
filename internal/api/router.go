package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/groshare/groupbuy/internal/api/middleware"
	"github.com/groshare/groupbuy/internal/auth"
)

// NewRouter assembles the HTTP surface. Everything except the health check
// requires a valid bearer token.
func NewRouter(h *Handlers, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(jwtService))

		// The SSE endpoints hold their connection open; everything else is
		// time-bounded.
		bounded := r.With(chimw.Timeout(15 * time.Second))

		bounded.Get("/orders", h.ListOrders)
		bounded.Post("/orders", h.CreateOrder)
		bounded.Get("/orders/{id}", h.GetOrder)
		bounded.Put("/orders/{id}", h.UpdateOrder)
		bounded.Post("/orders/{id}/join", h.JoinOrder)
		bounded.Delete("/orders/{id}/leave", h.LeaveOrder)
		bounded.Post("/orders/{id}/lock", h.LockOrder)
		bounded.Post("/orders/{id}/complete", h.CompleteOrder)
		bounded.Post("/orders/{id}/cancel", h.CancelOrder)

		bounded.Get("/users/orders", h.UserOrders)

		bounded.Post("/payments/process", h.ProcessPayment)
		bounded.Post("/payments/verify", h.VerifyPayment)
		bounded.Get("/payments/order/{id}", h.PaymentStatus)
		bounded.Get("/payments/methods", h.PaymentMethods)

		r.Get("/orders/{id}/events", h.StreamOrder)
		r.Get("/events", h.StreamGlobal)
	})

	return r
}
