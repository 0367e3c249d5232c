package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/staleness"
)

const rootURL = "https://shop.example/"

type readPath struct {
	catalog  *memory.Catalog
	jobs     *memory.ScrapeJobRepo
	sub      *spySubmitter
	scrape   ScrapeService
	trigger  *Trigger
	nav      NavigationService
	category CategoryService
	product  ProductService
}

func newReadPath(t *testing.T) *readPath {
	t.Helper()
	logger := zaptest.NewLogger(t)
	catalog := memory.NewCatalog()
	jobs := memory.NewScrapeJobRepo()
	sub := &spySubmitter{}
	scrape := NewScrapeService(jobs, sub, staleness.NewPolicy(60*time.Minute), 2*time.Second, logger)
	trigger := NewTrigger(logger)
	t.Cleanup(trigger.Close)

	return &readPath{
		catalog:  catalog,
		jobs:     jobs,
		sub:      sub,
		scrape:   scrape,
		trigger:  trigger,
		nav:      NewNavigationService(catalog.Navigations(), scrape, trigger, rootURL, logger),
		category: NewCategoryService(catalog.Categories(), catalog.Navigations(), scrape, trigger, logger),
		product:  NewProductService(catalog.Products(), scrape, trigger, logger),
	}
}

func (r *readPath) recentJobs(t *testing.T) []*entity.ScrapeJob {
	t.Helper()
	jobs, err := r.scrape.GetRecentJobs(context.Background(), 0)
	require.NoError(t, err)
	return jobs
}

func ago(d time.Duration) *time.Time {
	ts := time.Now().Add(-d)
	return &ts
}

func TestNavigationFindAll_EmptyEnqueuesSynchronously(t *testing.T) {
	r := newReadPath(t)

	navs, err := r.nav.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, navs)

	// No Wait: the enqueue already happened inside FindAll.
	jobs := r.recentJobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.TargetTypeNavigation, jobs[0].TargetType)
	assert.Equal(t, rootURL, jobs[0].TargetURL)
}

func TestNavigationFindAll_StaleRefreshesInBackground(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{
		Title: "Fiction", Slug: "fiction", SourceURL: "https://shop.example/fiction", LastScrapedAt: ago(2 * time.Hour),
	}))
	require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{
		Title: "History", Slug: "history", SourceURL: "https://shop.example/history", LastScrapedAt: ago(time.Minute),
	}))

	navs, err := r.nav.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, navs, 2)

	r.trigger.Wait()
	jobs := r.recentJobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.TargetTypeNavigation, jobs[0].TargetType)
}

func TestNavigationFindAll_FreshDoesNothing(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{
		Title: "Fiction", Slug: "fiction", SourceURL: "https://shop.example/fiction", LastScrapedAt: ago(time.Minute),
	}))

	_, err := r.nav.FindAll(ctx)
	require.NoError(t, err)
	r.trigger.Wait()
	assert.Empty(t, r.recentJobs(t))
}

func TestCategoryFindAll_EmptyTableSyncsFromNavigation(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	const n = 4
	for i := 0; i < n; i++ {
		require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{
			Title:         fmt.Sprintf("Nav %d", i),
			Slug:          fmt.Sprintf("nav-%d", i),
			SourceURL:     fmt.Sprintf("https://shop.example/nav/%d", i),
			LastScrapedAt: ago(time.Minute),
		}))
	}

	page, err := r.category.FindAll(ctx, CategoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, n, page.Total)
	assert.Len(t, page.Data, n)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	for _, c := range page.Data {
		require.NotNil(t, c.NavigationID)
	}
}

func TestCategoryFindAll_StalePageTriggersFirstCategory(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	for _, c := range []*entity.Category{
		{Title: "Art", Slug: "art", SourceURL: "https://shop.example/c/art", LastScrapedAt: ago(time.Minute)},
		{Title: "Biography", Slug: "biography", SourceURL: "https://shop.example/c/bio", LastScrapedAt: ago(3 * time.Hour)},
	} {
		_, err := r.catalog.Categories().Upsert(ctx, c)
		require.NoError(t, err)
	}

	page, err := r.category.FindAll(ctx, CategoryQuery{TopLevel: true, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 100, page.Limit)

	r.trigger.Wait()
	jobs := r.recentJobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.TargetTypeCategory, jobs[0].TargetType)
	assert.Equal(t, "https://shop.example/c/art", jobs[0].TargetURL)
}

func TestCategoryFindOne_StaleTriggersRefresh(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	navID := "nav-1"
	c := &entity.Category{Title: "Art", Slug: "art", SourceURL: "https://shop.example/c/art", NavigationID: &navID}
	_, err := r.catalog.Categories().Upsert(ctx, c)
	require.NoError(t, err)

	got, err := r.category.FindOne(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Art", got.Title)

	r.trigger.Wait()
	jobs := r.recentJobs(t)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].ReferenceID)
	assert.Equal(t, navID, *jobs[0].ReferenceID)

	_, err = r.category.FindOne(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStaleReads_SurviveEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	r.sub.err = errors.New("redis down")

	require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{
		Title: "Fiction", Slug: "fiction", SourceURL: "https://shop.example/fiction", LastScrapedAt: ago(2 * time.Hour),
	}))
	_, err := r.catalog.Categories().Upsert(ctx, &entity.Category{
		Title: "Art", Slug: "art", SourceURL: "https://shop.example/c/art", LastScrapedAt: ago(3 * time.Hour),
	})
	require.NoError(t, err)
	p := &entity.Product{SourceID: "dune-1", Title: "Dune", SourceURL: "https://shop.example/p/dune-1", LastScrapedAt: ago(2 * time.Hour)}
	require.NoError(t, r.catalog.Products().Upsert(ctx, p))
	require.NoError(t, r.catalog.Products().UpsertDetail(ctx, &entity.ProductDetail{ProductID: p.ID}))

	navs, err := r.nav.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, navs, 1)

	page, err := r.category.FindAll(ctx, CategoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Art", page.Data[0].Title)

	c, err := r.category.FindOne(ctx, page.Data[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Art", c.Title)

	got, err := r.product.FindOne(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)

	r.trigger.Wait()
	// Each refresh stored its job before the queue rejected it, leaving it for recovery.
	jobs := r.recentJobs(t)
	assert.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.Equal(t, entity.ScrapeJobStatusPending, job.Status)
	}
}

func TestNavigationFindAll_EmptyReturnsEnqueueFailure(t *testing.T) {
	r := newReadPath(t)
	r.sub.err = errors.New("redis down")

	navs, err := r.nav.FindAll(context.Background())
	assert.ErrorIs(t, err, ErrEnqueueFailed)
	assert.Nil(t, navs)
}

func TestCategoryGetBreadcrumbs(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	categories := r.catalog.Categories()

	root := &entity.Category{Title: "Fiction", Slug: "fiction", SourceURL: "https://shop.example/c/fiction"}
	_, err := categories.Upsert(ctx, root)
	require.NoError(t, err)
	mid := &entity.Category{Title: "Crime", Slug: "crime", SourceURL: "https://shop.example/c/crime", ParentID: &root.ID}
	_, err = categories.Upsert(ctx, mid)
	require.NoError(t, err)
	leaf := &entity.Category{Title: "Noir", Slug: "noir", SourceURL: "https://shop.example/c/noir", ParentID: &mid.ID}
	_, err = categories.Upsert(ctx, leaf)
	require.NoError(t, err)

	crumbs, err := r.category.GetBreadcrumbs(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, crumbs, 3)
	assert.Equal(t, []string{"Fiction", "Crime", "Noir"}, []string{crumbs[0].Title, crumbs[1].Title, crumbs[2].Title})

	none, err := r.category.GetBreadcrumbs(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCategorySyncFromNavigation_CountsOnlyInserts(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	require.NoError(t, r.catalog.Navigations().Upsert(ctx, &entity.Navigation{Title: "Fiction", Slug: "fiction", SourceURL: "https://shop.example/fiction"}))

	first, err := r.category.SyncFromNavigation(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Synced: 1, Total: 1}, first)

	second, err := r.category.SyncFromNavigation(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Synced: 0, Total: 1}, second)
}

func TestProductFindOne_StaleReturnsImmediatelyAndQueuesOneDetailJob(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	p := &entity.Product{
		SourceID:      "dune-1",
		Title:         "Dune",
		SourceURL:     "https://shop.example/p/dune-1",
		LastScrapedAt: ago(2 * time.Hour),
	}
	require.NoError(t, r.catalog.Products().Upsert(ctx, p))
	require.NoError(t, r.catalog.Products().UpsertDetail(ctx, &entity.ProductDetail{ProductID: p.ID}))

	got, err := r.product.FindOne(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, got.LastScrapedAt.Equal(*p.LastScrapedAt), "stale data is served as is")

	r.trigger.Wait()
	jobs := r.recentJobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.TargetTypeProductDetail, jobs[0].TargetType)
	require.NotNil(t, jobs[0].ReferenceID)
	assert.Equal(t, p.ID, *jobs[0].ReferenceID)

	// A second stale read reuses the pending job.
	_, err = r.product.FindOne(ctx, p.ID)
	require.NoError(t, err)
	r.trigger.Wait()
	assert.Len(t, r.recentJobs(t), 1)
}

func TestProductFindOne_MissingDetailTriggersEvenWhenFresh(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	p := &entity.Product{SourceID: "emma-1", Title: "Emma", SourceURL: "https://shop.example/p/emma-1", LastScrapedAt: ago(time.Minute)}
	require.NoError(t, r.catalog.Products().Upsert(ctx, p))

	_, err := r.product.FindOne(ctx, p.ID)
	require.NoError(t, err)
	r.trigger.Wait()
	assert.Len(t, r.recentJobs(t), 1)

	require.NoError(t, r.catalog.Products().UpsertDetail(ctx, &entity.ProductDetail{ProductID: p.ID}))
	fresh := &entity.Product{SourceID: "fresh-1", Title: "Fresh", SourceURL: "https://shop.example/p/fresh-1", LastScrapedAt: ago(time.Minute)}
	require.NoError(t, r.catalog.Products().Upsert(ctx, fresh))
	require.NoError(t, r.catalog.Products().UpsertDetail(ctx, &entity.ProductDetail{ProductID: fresh.ID}))

	_, err = r.product.FindOne(ctx, fresh.ID)
	require.NoError(t, err)
	r.trigger.Wait()
	assert.Len(t, r.recentJobs(t), 1, "fresh product with detail needs no refresh")
}

func TestProductFindAll_NormalizesQuery(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	for i, title := range []string{"Cecilia", "Amelia", "Belinda"} {
		require.NoError(t, r.catalog.Products().Upsert(ctx, &entity.Product{
			SourceID:  fmt.Sprintf("p-%d", i),
			Title:     title,
			Price:     float64(i + 1),
			SourceURL: fmt.Sprintf("https://shop.example/p/%d", i),
		}))
	}

	page, err := r.product.FindAll(ctx, ProductQuery{SortBy: "DROP TABLE", Page: 0})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, "Amelia", page.Data[0].Title)

	byPrice, err := r.product.FindAll(ctx, ProductQuery{SortBy: "price", SortOrder: "desc", Limit: 2})
	require.NoError(t, err)
	require.Len(t, byPrice.Data, 2)
	assert.Equal(t, "Belinda", byPrice.Data[0].Title)
}

func TestProductGetRelatedProducts(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)
	products := r.catalog.Products()

	main := &entity.Product{SourceID: "main", Title: "Main", SourceURL: "https://shop.example/p/main"}
	require.NoError(t, products.Upsert(ctx, main))

	related, err := r.product.GetRelatedProducts(ctx, main.ID)
	require.NoError(t, err)
	assert.Empty(t, related)

	require.NoError(t, products.Upsert(ctx, &entity.Product{SourceID: "r1", Title: "R1", SourceURL: "https://shop.example/p/r1"}))
	require.NoError(t, products.UpsertDetail(ctx, &entity.ProductDetail{ProductID: main.ID, RelatedProductIDs: []string{"r1", "unknown"}}))

	related, err = r.product.GetRelatedProducts(ctx, main.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "R1", related[0].Title)
}

func TestExplicitTriggersDeduplicate(t *testing.T) {
	ctx := context.Background()
	r := newReadPath(t)

	a, err := r.product.TriggerListScrape(ctx, "https://shop.example/c/art", "cat-1")
	require.NoError(t, err)
	b, err := r.product.TriggerListScrape(ctx, "https://shop.example/c/art", "cat-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	nav1, err := r.nav.TriggerScrape(ctx)
	require.NoError(t, err)
	nav2, err := r.nav.TriggerScrape(ctx)
	require.NoError(t, err)
	assert.Equal(t, nav1.ID, nav2.ID)
}

func TestViewHistoryService(t *testing.T) {
	ctx := context.Background()
	svc := NewViewHistoryService(memory.NewViewHistoryRepo(), zaptest.NewLogger(t))

	_, err := svc.Create(ctx, ViewHistoryInput{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	for i := 0; i < 105; i++ {
		_, err := svc.Create(ctx, ViewHistoryInput{SessionID: "s1", UserID: "u1", EntityType: "product", EntityID: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	bySession, err := svc.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, bySession, 100)
	assert.Equal(t, "104", bySession[0].EntityID)

	byUser, err := svc.FindByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 100)

	require.NoError(t, svc.ClearSession(ctx, "s1"))
	bySession, err = svc.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, bySession)
}
