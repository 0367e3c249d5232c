package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/user/catalog-service/internal/delivery/http/request"
	"github.com/user/catalog-service/internal/delivery/http/response"
	"github.com/user/catalog-service/internal/usecase"
)

// Navigation

func (h *Handler) HandleListNavigation(w http.ResponseWriter, r *http.Request) {
	navs, err := h.navigation.FindAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(navs, response.NewNavigation))
}

func (h *Handler) HandleGetNavigation(w http.ResponseWriter, r *http.Request) {
	nav, err := h.navigation.FindOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewNavigation(nav))
}

func (h *Handler) HandleGetNavigationBySlug(w http.ResponseWriter, r *http.Request) {
	nav, err := h.navigation.FindBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewNavigation(nav))
}

// Categories

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.category.FindAll(r.Context(), usecase.CategoryQuery{
		NavigationID: q.Get("navigationId"),
		ParentID:     q.Get("parentId"),
		TopLevel:     q.Get("topLevel") == "true",
		Page:         queryInt(r, "page"),
		Limit:        queryInt(r, "limit"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.PageResponse[response.CategoryResponse]{
		Data:  response.List(page.Data, response.NewCategory),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	})
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.category.FindOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewCategory(c))
}

func (h *Handler) HandleGetCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	c, err := h.category.FindBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewCategory(c))
}

func (h *Handler) HandleGetBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	crumbs, err := h.category.GetBreadcrumbs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(crumbs, response.NewCategory))
}

func (h *Handler) HandleSyncCategories(w http.ResponseWriter, r *http.Request) {
	res, err := h.category.SyncFromNavigation(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.SyncResponse{Synced: res.Synced, Total: res.Total})
}

func (h *Handler) HandleRefreshCategory(w http.ResponseWriter, r *http.Request) {
	var req request.RefreshCategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := url.ParseRequestURI(req.SourceURL); err != nil {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}
	job, err := h.category.TriggerScrape(r.Context(), req.SourceURL, req.NavigationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAccepted(w, "Category scrape queued", job)
}

// Products

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.product.FindAll(r.Context(), usecase.ProductQuery{
		CategoryID: q.Get("categoryId"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
		Page:       queryInt(r, "page"),
		Limit:      queryInt(r, "limit"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.PageResponse[response.ProductResponse]{
		Data:  response.List(page.Data, response.NewProduct),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	})
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.product.FindOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewProduct(p))
}

func (h *Handler) HandleGetProductReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.product.GetProductReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(reviews, response.NewReview))
}

func (h *Handler) HandleGetRelatedProducts(w http.ResponseWriter, r *http.Request) {
	related, err := h.product.GetRelatedProducts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.List(related, response.NewProduct))
}

func (h *Handler) HandleRefreshProducts(w http.ResponseWriter, r *http.Request) {
	var req request.RefreshProductsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := url.ParseRequestURI(req.SourceURL); err != nil {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}
	job, err := h.product.TriggerListScrape(r.Context(), req.SourceURL, req.CategoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAccepted(w, "Product list scrape queued", job)
}

func (h *Handler) HandleRefreshProduct(w http.ResponseWriter, r *http.Request) {
	job, err := h.product.TriggerDetailScrape(r.Context(), chi.URLParam(r, "id"), "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAccepted(w, "Product detail scrape queued", job)
}
