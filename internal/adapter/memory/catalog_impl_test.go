package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestCategoryRepo_UpsertAndRelations(t *testing.T) {
	ctx := context.Background()
	cat := NewCatalog()

	nav := &entity.Navigation{Title: "Books", Slug: "books", SourceURL: "https://example.com/books"}
	require.NoError(t, cat.Navigations().Upsert(ctx, nav))

	parent := &entity.Category{Title: "Fiction", Slug: "fiction", SourceURL: "https://example.com/c/fiction", NavigationID: &nav.ID}
	inserted, err := cat.Categories().Upsert(ctx, parent)
	require.NoError(t, err)
	assert.True(t, inserted)

	child := &entity.Category{Title: "Crime", Slug: "crime", SourceURL: "https://example.com/c/crime", ParentID: &parent.ID}
	_, err = cat.Categories().Upsert(ctx, child)
	require.NoError(t, err)

	again := &entity.Category{Title: "Fiction & Stories", Slug: "fiction", SourceURL: "https://example.com/c/fiction"}
	inserted, err = cat.Categories().Upsert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, parent.ID, again.ID)

	got, err := cat.Categories().FindByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fiction & Stories", got.Title)
	require.NotNil(t, got.NavigationID, "nil navigation id keeps the stored value")
	require.NotNil(t, got.Navigation)
	assert.Equal(t, "Books", got.Navigation.Title)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "Crime", got.Children[0].Title)

	top, total, err := cat.Categories().List(ctx, repository.CategoryFilter{TopLevel: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, parent.ID, top[0].ID)

	loaded, err := cat.Navigations().FindBySlug(ctx, "books")
	require.NoError(t, err)
	assert.Len(t, loaded.Categories, 1)
}

func TestProductRepo_ListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	products := NewCatalog().Products()

	for _, p := range []*entity.Product{
		{SourceID: "1", Title: "Dune", Author: strPtr("Frank Herbert"), Price: 7.5, SourceURL: "https://example.com/b/1"},
		{SourceID: "2", Title: "Emma", Author: strPtr("Jane Austen"), Price: 3, SourceURL: "https://example.com/b/2"},
		{SourceID: "3", Title: "Children of Dune", Author: strPtr("Frank Herbert"), Price: 5, SourceURL: "https://example.com/b/3"},
	} {
		require.NoError(t, products.Upsert(ctx, p))
	}

	found, total, err := products.List(ctx, repository.ProductFilter{Search: "HERBERT", SortBy: "price", SortDesc: true, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, found, 2)
	assert.Equal(t, "Dune", found[0].Title)
	assert.Equal(t, "Children of Dune", found[1].Title)

	page, total, err := products.List(ctx, repository.ProductFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Emma", page[0].Title)
}

func TestProductRepo_DetailsAndReviews(t *testing.T) {
	ctx := context.Background()
	products := NewCatalog().Products()

	p := &entity.Product{SourceID: "1", Title: "Dune", SourceURL: "https://example.com/b/1"}
	require.NoError(t, products.Upsert(ctx, p))

	_, err := products.GetDetail(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, products.UpsertDetail(ctx, &entity.ProductDetail{ProductID: p.ID, RelatedProductIDs: []string{"2"}}))
	added, err := products.AddReviews(ctx, p.ID, []*entity.Review{
		{Author: strPtr("amy"), Rating: 5, Text: strPtr("great")},
		{Author: strPtr("amy"), Rating: 5, Text: strPtr("great")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	at := time.Now()
	require.NoError(t, products.MarkScraped(ctx, p.ID, at))

	got, err := products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Detail)
	assert.Equal(t, []string{"2"}, got.Detail.RelatedProductIDs)
	assert.Len(t, got.Reviews, 1)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, got.LastScrapedAt.Equal(at))
	assert.ErrorIs(t, products.MarkScraped(ctx, "missing", at), repository.ErrNotFound)
}
