package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/usecase"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

// Handler serves the HTTP API on top of the use cases.
type Handler struct {
	scrape      usecase.ScrapeService
	navigation  usecase.NavigationService
	category    usecase.CategoryService
	product     usecase.ProductService
	viewHistory usecase.ViewHistoryService
	checks      map[string]HealthCheck
	logger      *zap.Logger
}

// Services groups the use cases a Handler needs.
type Services struct {
	Scrape      usecase.ScrapeService
	Navigation  usecase.NavigationService
	Category    usecase.CategoryService
	Product     usecase.ProductService
	ViewHistory usecase.ViewHistoryService
}

// NewHandler creates a Handler. checks maps a dependency name such as
// "postgres" to its ping; it may be empty.
func NewHandler(svc Services, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		scrape:      svc.Scrape,
		navigation:  svc.Navigation,
		category:    svc.Category,
		product:     svc.Product,
		viewHistory: svc.ViewHistory,
		checks:      checks,
		logger:      logger.Named("http"),
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("dependency", name), zap.Error(err))
			resp[name] = "unhealthy"
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "healthy"
	}
	h.writeJSON(w, status, resp)
}

// writeError maps use case errors onto status codes. Unknown errors are logged
// and reported with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeJSONError(w, "Resource not found", http.StatusNotFound)
	case errors.Is(err, usecase.ErrInvalidTargetType), errors.Is(err, usecase.ErrInvalidInput):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter; missing or malformed
// values yield 0 so the use case applies its default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
