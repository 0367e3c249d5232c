package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/delivery/http/middleware"
)

const requestTimeout = 60 * time.Second

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chimw.Timeout(requestTimeout))

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)

		r.Route("/scrape", func(r chi.Router) {
			r.Post("/", h.HandleSubmitScrape)
			r.Post("/navigation", h.HandleScrapeNavigation)
			r.Get("/jobs", h.HandleListJobs)
			r.Get("/jobs/{id}", h.HandleGetJob)
		})

		r.Route("/navigation", func(r chi.Router) {
			r.Get("/", h.HandleListNavigation)
			r.Post("/refresh", h.HandleScrapeNavigation)
			r.Get("/slug/{slug}", h.HandleGetNavigationBySlug)
			r.Get("/{id}", h.HandleGetNavigation)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.HandleListCategories)
			r.Post("/sync", h.HandleSyncCategories)
			r.Post("/refresh", h.HandleRefreshCategory)
			r.Get("/slug/{slug}", h.HandleGetCategoryBySlug)
			r.Get("/{id}", h.HandleGetCategory)
			r.Get("/{id}/breadcrumbs", h.HandleGetBreadcrumbs)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.HandleListProducts)
			r.Post("/refresh", h.HandleRefreshProducts)
			r.Get("/{id}", h.HandleGetProduct)
			r.Get("/{id}/reviews", h.HandleGetProductReviews)
			r.Get("/{id}/related", h.HandleGetRelatedProducts)
			r.Post("/{id}/refresh", h.HandleRefreshProduct)
		})

		r.Route("/view-history", func(r chi.Router) {
			r.Post("/", h.HandleCreateViewHistory)
			r.Get("/session/{sessionId}", h.HandleListSessionHistory)
			r.Delete("/session/{sessionId}", h.HandleClearSessionHistory)
			r.Get("/user/{userId}", h.HandleListUserHistory)
		})
	})

	return r
}
