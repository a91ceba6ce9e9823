package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/gioigioi124/elanAI/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса учёта недостач.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if h.registry != nil {
		r.Use(custommiddleware.NewHTTPMetrics(h.registry).Middleware)
	}
	r.Use(custommiddleware.Logger(h.logger))
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Encoding"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", h.Health)
	if h.registry != nil {
		r.Handle("/metrics", custommiddleware.MetricsHandler(h.registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Post("/confirm-batch", h.ConfirmBatch)
			r.Get("/surplus-deficit", h.SurplusDeficit)
			r.Get("/warehouse-items", h.WarehouseItems)
			r.Get("/dispatcher-items", h.DispatcherItems)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Put("/", h.UpdateOrder)
				r.Delete("/", h.DeleteOrder)
				r.Put("/assign", h.AssignVehicle)
				r.Post("/recalculate", h.RecalculateOrder)
				r.Put("/items/{index}/leader-confirm", h.ConfirmLeader)
				r.Put("/items/{index}/warehouse-confirm", h.ConfirmWarehouse)
			})
		})

		r.Route("/api/shortages", func(r chi.Router) {
			r.Post("/compensate", h.CompensateShortage)
			r.Put("/ignore", h.IgnoreShortage)
			r.Get("/remaining", h.RemainingShortages)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
