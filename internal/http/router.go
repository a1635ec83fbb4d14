package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/http/middleware"
)

func NewRouter(h *CartHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(chimw.Logger)
	r.Use(middleware.Recover(h.logger))

	r.Get("/health", h.Health)

	r.Route("/api/cart", func(r chi.Router) {
		r.Post("/add-product", h.AddProduct)
		r.Get("/active", h.GetActiveCart)
		r.Get("/stats", h.Stats)
		r.Post("/{cartId}/finalize", h.FinalizeCart)
		r.Get("/{cartId}/complete", h.CompleteCart)
	})

	return r
}
