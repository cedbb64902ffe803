package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/sponsorpay-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса sponsorpay.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/tiers", h.GetTiers)
		r.Post("/create-cart", h.CreateCart)
		r.Get("/payment-methods", h.GetPaymentMethods)
		r.Get("/client-secret", h.GetClientSecret)
		r.Post("/process", h.ProcessPayment)
		r.Post("/confirm", h.ConfirmPayment)
		r.Get("/transaction/{id}", h.GetTransaction)
		r.Get("/latest-cart", h.GetLatestCart)
	})

	r.Route("/email", func(r chi.Router) {
		r.Post("/format", h.FormatEmail)

		// Статистику фронтенд и агент запрашивают и GET, и POST запросами.
		r.Get("/stats", h.GetEmailStats)
		r.Post("/stats", h.GetEmailStats)
		r.Get("/stats/{trackingID}", h.GetEmailStatsByID)
		r.Post("/stats/{trackingID}", h.GetEmailStatsByID)
	})

	r.Get("/track/open/{trackingID}", h.TrackOpen)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "not_found", "route not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}
