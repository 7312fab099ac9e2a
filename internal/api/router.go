/**
 * @description
 * This file sets up the HTTP router for the camfinder server using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, recovery, CORS and the admin gate, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ivanod1994/camfinder-server/internal/auth"
)

// NewRouter creates a new Chi router and registers the server's routes.
func NewRouter(h *Handlers, gate auth.Gate) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("camfinder server is healthy"))
	})

	// Device-facing routes, no authorization required.
	r.Route("/api", func(r chi.Router) {
		r.Post("/devices/register", h.RegisterDeviceHandler)
		r.Get("/devices/status", h.DeviceStatusHandler)
		r.Post("/devices/free", h.ConsumeFreeHandler)
		r.Post("/payments/submit", h.SubmitPaymentHandler)
		r.Get("/config", h.ConfigHandler)
	})

	// Admin routes behind the admin gate.
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuth(gate))

		r.Get("/payments/pending", h.PendingPaymentsHandler)
		r.Post("/payments/activate", h.ActivateHandler)
		r.Post("/payments/reject", h.RejectHandler)
		r.Post("/subscriptions/revoke", h.RevokeHandler)
		r.Get("/devices", h.ListDevicesHandler)
		r.Delete("/devices/{deviceID}", h.DeleteDeviceHandler)
		r.Post("/devices/free", h.SetFreeHandler)
	})

	return r
}
