package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/catalog-service/internal/delivery/http/request"
	"github.com/user/catalog-service/internal/delivery/http/response"
	"github.com/user/catalog-service/internal/usecase"
)

func (h *Handler) HandleCreateViewHistory(w http.ResponseWriter, r *http.Request) {
	var req request.CreateViewHistoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.viewHistory.Create(r.Context(), usecase.ViewHistoryInput{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Path:       req.Path,
		PathJSON:   req.PathJSON,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, response.NewViewHistory(v))
}

func (h *Handler) HandleListSessionHistory(w http.ResponseWriter, r *http.Request) {
	views, err := h.viewHistory.FindBySession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(views, response.NewViewHistory))
}

func (h *Handler) HandleListUserHistory(w http.ResponseWriter, r *http.Request) {
	views, err := h.viewHistory.FindByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(views, response.NewViewHistory))
}

func (h *Handler) HandleClearSessionHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.viewHistory.ClearSession(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
