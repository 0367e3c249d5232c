package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/user/catalog-service/internal/delivery/http/request"
	"github.com/user/catalog-service/internal/delivery/http/response"
	"github.com/user/catalog-service/internal/entity"
)

func (h *Handler) HandleSubmitScrape(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitScrapeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := url.ParseRequestURI(req.TargetURL); err != nil {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	job, err := h.scrape.EnqueueScrapeJob(r.Context(), req.TargetURL, entity.TargetType(req.TargetType), req.ReferenceID, req.ForceRefresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAccepted(w, "Scrape job queued", job)
}

func (h *Handler) HandleScrapeNavigation(w http.ResponseWriter, r *http.Request) {
	job, err := h.navigation.TriggerScrape(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAccepted(w, "Navigation scrape queued", job)
}

func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.scrape.GetRecentJobs(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(jobs, response.NewScrapeJob))
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scrape.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewScrapeJob(job))
}

func (h *Handler) writeAccepted(w http.ResponseWriter, message string, job *entity.ScrapeJob) {
	h.writeJSON(w, http.StatusAccepted, response.SubmitScrapeResponse{
		Status:  "accepted",
		Message: message,
		Job:     response.NewScrapeJob(job),
	})
}
