package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

// Catalog holds navigation, categories and products behind one lock so the
// repositories can resolve relations between them.
type Catalog struct {
	mu         sync.RWMutex
	navs       map[string]*entity.Navigation
	categories map[string]*entity.Category
	products   map[string]*entity.Product
	details    map[string]*entity.ProductDetail // keyed by product id
	reviews    map[string][]*entity.Review      // keyed by product id
	now        func() time.Time
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		navs:       make(map[string]*entity.Navigation),
		categories: make(map[string]*entity.Category),
		products:   make(map[string]*entity.Product),
		details:    make(map[string]*entity.ProductDetail),
		reviews:    make(map[string][]*entity.Review),
		now:        time.Now,
	}
}

// Navigations returns the navigation repository view.
func (c *Catalog) Navigations() *NavigationRepo { return &NavigationRepo{c: c} }

// Categories returns the category repository view.
func (c *Catalog) Categories() *CategoryRepo { return &CategoryRepo{c: c} }

// Products returns the product repository view.
func (c *Catalog) Products() *ProductRepo { return &ProductRepo{c: c} }

// NavigationRepo implements repository.NavigationRepository over a Catalog.
type NavigationRepo struct{ c *Catalog }

func (r *NavigationRepo) List(_ context.Context) ([]*entity.Navigation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	out := make([]*entity.Navigation, 0, len(r.c.navs))
	for _, n := range r.c.navs {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r *NavigationRepo) FindByID(_ context.Context, id string) (*entity.Navigation, error) {
	return r.find(func(n *entity.Navigation) bool { return n.ID == id })
}

func (r *NavigationRepo) FindBySlug(_ context.Context, slug string) (*entity.Navigation, error) {
	return r.find(func(n *entity.Navigation) bool { return n.Slug == slug })
}

func (r *NavigationRepo) find(match func(*entity.Navigation) bool) (*entity.Navigation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	for _, n := range r.c.navs {
		if !match(n) {
			continue
		}
		cp := *n
		cp.Categories = r.c.categoriesWhere(func(cat *entity.Category) bool {
			return cat.NavigationID != nil && *cat.NavigationID == n.ID
		})
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *NavigationRepo) Upsert(_ context.Context, nav *entity.Navigation) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	now := r.c.now()
	for _, existing := range r.c.navs {
		if existing.SourceURL == nav.SourceURL {
			existing.Title = nav.Title
			existing.Slug = nav.Slug
			existing.LastScrapedAt = cloneTime(nav.LastScrapedAt)
			existing.UpdatedAt = now
			nav.ID, nav.CreatedAt, nav.UpdatedAt = existing.ID, existing.CreatedAt, now
			return nil
		}
	}
	nav.ID = uuid.NewString()
	nav.CreatedAt, nav.UpdatedAt = now, now
	cp := *nav
	cp.Categories = nil
	cp.LastScrapedAt = cloneTime(nav.LastScrapedAt)
	r.c.navs[nav.ID] = &cp
	return nil
}

// CategoryRepo implements repository.CategoryRepository over a Catalog.
type CategoryRepo struct{ c *Catalog }

func (r *CategoryRepo) Count(_ context.Context) (int, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return len(r.c.categories), nil
}

func (r *CategoryRepo) List(_ context.Context, f repository.CategoryFilter) ([]*entity.Category, int, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	all := r.c.categoriesWhere(func(cat *entity.Category) bool {
		if f.NavigationID != "" && (cat.NavigationID == nil || *cat.NavigationID != f.NavigationID) {
			return false
		}
		if f.ParentID != "" {
			return cat.ParentID != nil && *cat.ParentID == f.ParentID
		}
		return !f.TopLevel || cat.ParentID == nil
	})
	return paginate(all, f.Offset, f.Limit), len(all), nil
}

func (r *CategoryRepo) FindByID(_ context.Context, id string) (*entity.Category, error) {
	return r.findWithRelations(func(cat *entity.Category) bool { return cat.ID == id })
}

func (r *CategoryRepo) FindBySlug(_ context.Context, slug string) (*entity.Category, error) {
	return r.findWithRelations(func(cat *entity.Category) bool { return cat.Slug == slug })
}

func (r *CategoryRepo) FindBySourceURL(_ context.Context, sourceURL string) (*entity.Category, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	found := r.c.categoriesWhere(func(cat *entity.Category) bool { return cat.SourceURL == sourceURL })
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	return found[0], nil
}

func (r *CategoryRepo) ListChildren(_ context.Context, parentID string) ([]*entity.Category, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return r.c.categoriesWhere(func(cat *entity.Category) bool {
		return cat.ParentID != nil && *cat.ParentID == parentID
	}), nil
}

func (r *CategoryRepo) ListByNavigation(_ context.Context, navigationID string) ([]*entity.Category, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return r.c.categoriesWhere(func(cat *entity.Category) bool {
		return cat.NavigationID != nil && *cat.NavigationID == navigationID
	}), nil
}

func (r *CategoryRepo) Upsert(_ context.Context, c *entity.Category) (bool, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	now := r.c.now()
	for _, existing := range r.c.categories {
		if existing.SourceURL != c.SourceURL {
			continue
		}
		existing.Title = c.Title
		existing.Slug = c.Slug
		if c.NavigationID != nil {
			existing.NavigationID = cloneString(c.NavigationID)
		}
		if c.ParentID != nil {
			existing.ParentID = cloneString(c.ParentID)
		}
		if c.ProductCount != nil {
			n := *c.ProductCount
			existing.ProductCount = &n
		}
		if c.ImageURL != nil {
			existing.ImageURL = cloneString(c.ImageURL)
		}
		existing.LastScrapedAt = cloneTime(c.LastScrapedAt)
		existing.UpdatedAt = now
		c.ID, c.CreatedAt, c.UpdatedAt = existing.ID, existing.CreatedAt, now
		return false, nil
	}

	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	r.c.categories[c.ID] = cloneCategory(c)
	return true, nil
}

func (r *CategoryRepo) findWithRelations(match func(*entity.Category) bool) (*entity.Category, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	found := r.c.categoriesWhere(match)
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	cat := found[0]
	cat.Children = r.c.categoriesWhere(func(child *entity.Category) bool {
		return child.ParentID != nil && *child.ParentID == cat.ID
	})
	if cat.ParentID != nil {
		if p, ok := r.c.categories[*cat.ParentID]; ok {
			cat.Parent = cloneCategory(p)
		}
	}
	if cat.NavigationID != nil {
		if n, ok := r.c.navs[*cat.NavigationID]; ok {
			cp := *n
			cat.Navigation = &cp
		}
	}
	return cat, nil
}

// categoriesWhere must be called with the lock held. Results are ordered by title.
func (c *Catalog) categoriesWhere(keep func(*entity.Category) bool) []*entity.Category {
	out := make([]*entity.Category, 0)
	for _, cat := range c.categories {
		if keep(cat) {
			out = append(out, cloneCategory(cat))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func cloneCategory(c *entity.Category) *entity.Category {
	cp := *c
	cp.NavigationID = cloneString(c.NavigationID)
	cp.ParentID = cloneString(c.ParentID)
	cp.ImageURL = cloneString(c.ImageURL)
	cp.LastScrapedAt = cloneTime(c.LastScrapedAt)
	cp.Navigation, cp.Parent, cp.Children = nil, nil, nil
	return &cp
}

// ProductRepo implements repository.ProductRepository over a Catalog.
type ProductRepo struct{ c *Catalog }

func (r *ProductRepo) List(_ context.Context, f repository.ProductFilter) ([]*entity.Product, int, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	search := strings.ToLower(f.Search)
	all := r.c.productsWhere(func(p *entity.Product) bool {
		if f.CategoryID != "" && (p.CategoryID == nil || *p.CategoryID != f.CategoryID) {
			return false
		}
		if search == "" {
			return true
		}
		if strings.Contains(strings.ToLower(p.Title), search) {
			return true
		}
		return p.Author != nil && strings.Contains(strings.ToLower(*p.Author), search)
	})

	less := productLess(f.SortBy)
	sort.SliceStable(all, func(i, j int) bool {
		if f.SortDesc {
			return less(all[j], all[i])
		}
		return less(all[i], all[j])
	})
	return paginate(all, f.Offset, f.Limit), len(all), nil
}

func productLess(sortBy string) func(a, b *entity.Product) bool {
	switch sortBy {
	case "price":
		return func(a, b *entity.Product) bool { return a.Price < b.Price }
	case "author":
		return func(a, b *entity.Product) bool { return deref(a.Author) < deref(b.Author) }
	case "createdAt":
		return func(a, b *entity.Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return func(a, b *entity.Product) bool { return a.Title < b.Title }
	}
}

func (r *ProductRepo) FindByID(_ context.Context, id string) (*entity.Product, error) {
	return r.findWithRelations(func(p *entity.Product) bool { return p.ID == id })
}

func (r *ProductRepo) FindBySourceID(_ context.Context, sourceID string) (*entity.Product, error) {
	return r.findWithRelations(func(p *entity.Product) bool { return p.SourceID == sourceID })
}

func (r *ProductRepo) FindBySourceURL(_ context.Context, sourceURL string) (*entity.Product, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	found := r.c.productsWhere(func(p *entity.Product) bool { return p.SourceURL == sourceURL })
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	return found[0], nil
}

func (r *ProductRepo) ListBySourceIDs(_ context.Context, sourceIDs []string, limit int) ([]*entity.Product, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	wanted := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = struct{}{}
	}
	found := r.c.productsWhere(func(p *entity.Product) bool {
		_, ok := wanted[p.SourceID]
		return ok
	})
	sort.Slice(found, func(i, j int) bool { return found[i].Title < found[j].Title })
	return paginate(found, 0, limit), nil
}

func (r *ProductRepo) Upsert(_ context.Context, p *entity.Product) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if p.Currency == "" {
		p.Currency = "GBP"
	}
	now := r.c.now()
	for _, existing := range r.c.products {
		if existing.SourceID != p.SourceID {
			continue
		}
		created := existing.CreatedAt
		merged := cloneProduct(p)
		if merged.Author == nil {
			merged.Author = existing.Author
		}
		if merged.OriginalPrice == nil {
			merged.OriginalPrice = existing.OriginalPrice
		}
		if merged.ImageURL == nil {
			merged.ImageURL = existing.ImageURL
		}
		if merged.CategoryID == nil {
			merged.CategoryID = existing.CategoryID
		}
		if merged.Condition == nil {
			merged.Condition = existing.Condition
		}
		if merged.LastScrapedAt == nil {
			merged.LastScrapedAt = existing.LastScrapedAt
		}
		merged.ID, merged.CreatedAt, merged.UpdatedAt = existing.ID, created, now
		r.c.products[existing.ID] = merged
		p.ID, p.CreatedAt, p.UpdatedAt = existing.ID, created, now
		return nil
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.c.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *ProductRepo) MarkScraped(_ context.Context, id string, at time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	p, ok := r.c.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.LastScrapedAt = &at
	p.UpdatedAt = r.c.now()
	return nil
}

func (r *ProductRepo) GetDetail(_ context.Context, productID string) (*entity.ProductDetail, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	d, ok := r.c.details[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *ProductRepo) UpsertDetail(_ context.Context, d *entity.ProductDetail) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	if existing, ok := r.c.details[d.ProductID]; ok {
		d.ID = existing.ID
	} else if d.ID == "" {
		d.ID = uuid.NewString()
	}
	cp := *d
	r.c.details[d.ProductID] = &cp
	return nil
}

func (r *ProductRepo) ListReviews(_ context.Context, productID string) ([]*entity.Review, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return r.c.reviewsFor(productID), nil
}

func (r *ProductRepo) AddReviews(_ context.Context, productID string, reviews []*entity.Review) (int, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	added := 0
	for _, rv := range reviews {
		duplicate := false
		for _, existing := range r.c.reviews[productID] {
			if deref(existing.Author) == deref(rv.Author) && deref(existing.Text) == deref(rv.Text) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		cp := *rv
		cp.ProductID = productID
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		cp.CreatedAt = r.c.now()
		r.c.reviews[productID] = append(r.c.reviews[productID], &cp)
		added++
	}
	return added, nil
}

func (r *ProductRepo) findWithRelations(match func(*entity.Product) bool) (*entity.Product, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	found := r.c.productsWhere(match)
	if len(found) == 0 {
		return nil, repository.ErrNotFound
	}
	p := found[0]
	if d, ok := r.c.details[p.ID]; ok {
		cp := *d
		p.Detail = &cp
	}
	p.Reviews = r.c.reviewsFor(p.ID)
	if p.CategoryID != nil {
		if cat, ok := r.c.categories[*p.CategoryID]; ok {
			p.Category = cloneCategory(cat)
		}
	}
	return p, nil
}

// productsWhere must be called with the lock held.
func (c *Catalog) productsWhere(keep func(*entity.Product) bool) []*entity.Product {
	out := make([]*entity.Product, 0)
	for _, p := range c.products {
		if keep(p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// reviewsFor must be called with the lock held. Newest first.
func (c *Catalog) reviewsFor(productID string) []*entity.Review {
	out := make([]*entity.Review, 0, len(c.reviews[productID]))
	for _, rv := range c.reviews[productID] {
		cp := *rv
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneProduct(p *entity.Product) *entity.Product {
	cp := *p
	cp.LastScrapedAt = cloneTime(p.LastScrapedAt)
	cp.Category, cp.Detail, cp.Reviews = nil, nil, nil
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	_ repository.NavigationRepository = (*NavigationRepo)(nil)
	_ repository.CategoryRepository   = (*CategoryRepo)(nil)
	_ repository.ProductRepository    = (*ProductRepo)(nil)
)
