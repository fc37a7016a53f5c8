package viewcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/database/testutil"
	"github.com/charlesng35/viewcache/internal/models"
)

type articleFixture struct {
	db    *gorm.DB
	store *cache.MemoryStore
	cache *Cache
	loads int
}

type articleTestView struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func newArticleFixture(t *testing.T) *articleFixture {
	t.Helper()

	f := &articleFixture{
		db:    testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()),
		store: cache.NewMemoryStore(),
	}
	t.Cleanup(f.store.Stop)

	registry := NewRegistry()
	require.NoError(t, registry.Register("article", Binding{
		Prototype: &models.Article{},
		Serializer: func(instance any) ([]byte, error) {
			article, ok := instance.(*models.Article)
			if !ok {
				return nil, fmt.Errorf("unexpected instance type %T", instance)
			}
			return json.Marshal(articleTestView{
				ID:     article.ID,
				Title:  article.Title,
				Status: article.Status,
			})
		},
		Loader: func(ctx context.Context, pk string) (any, error) {
			f.loads++
			var article models.Article
			err := f.db.WithContext(ctx).Take(&article, "id = ?", pk).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &article, nil
		},
	}))

	c, err := New(f.store, registry, Options{})
	require.NoError(t, err)
	f.cache = c
	return f
}

func (f *articleFixture) seedAuthor(t *testing.T) models.Author {
	t.Helper()
	author := models.Author{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, f.db.Create(&author).Error)
	return author
}

func (f *articleFixture) seedArticle(t *testing.T, authorID, title, slug, status string) models.Article {
	t.Helper()
	article := models.Article{
		Title:    title,
		Slug:     slug,
		Status:   status,
		AuthorID: authorID,
		Body:     "body of " + title,
	}
	require.NoError(t, f.db.Create(&article).Error)
	return article
}

func TestQueryListFiltersAndCaches(t *testing.T) {
	f := newArticleFixture(t)
	ctx := context.Background()

	author := f.seedAuthor(t)
	published := f.seedArticle(t, author.ID, "First", "first", models.ArticleStatusPublished)
	f.seedArticle(t, author.ID, "Hidden", "hidden", models.ArticleStatusDraft)

	query := f.cache.Query("article", f.db).
		Filter("status = ?", models.ArticleStatusPublished).
		OrderBy("created_at")

	payloads, err := query.List(ctx)
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var view articleTestView
	require.NoError(t, json.Unmarshal(payloads[0], &view))
	require.Equal(t, published.ID, view.ID)
	require.Equal(t, "First", view.Title)

	loadsAfterFirst := f.loads

	// The pk list and the payloads are both cached now.
	payloads, err = query.List(ctx)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	require.Equal(t, loadsAfterFirst, f.loads)
}

func TestQueryPKListStaleUntilVersionBump(t *testing.T) {
	f := newArticleFixture(t)
	ctx := context.Background()

	author := f.seedAuthor(t)
	f.seedArticle(t, author.ID, "First", "first", models.ArticleStatusPublished)

	query := f.cache.Query("article", f.db).Filter("status = ?", models.ArticleStatusPublished)

	pks, err := query.PKs(ctx)
	require.NoError(t, err)
	require.Len(t, pks, 1)

	// A second published article appears, but the cached pk list is still
	// served until the model version advances.
	f.seedArticle(t, author.ID, "Second", "second", models.ArticleStatusPublished)

	pks, err = query.PKs(ctx)
	require.NoError(t, err)
	require.Len(t, pks, 1)

	_, err = f.cache.BumpVersion(ctx, "article")
	require.NoError(t, err)

	pks, err = query.PKs(ctx)
	require.NoError(t, err)
	require.Len(t, pks, 2)
}

func TestQueryPage(t *testing.T) {
	f := newArticleFixture(t)
	ctx := context.Background()

	author := f.seedAuthor(t)
	for i := 0; i < 5; i++ {
		f.seedArticle(t, author.ID,
			fmt.Sprintf("Article %d", i),
			fmt.Sprintf("article-%d", i),
			models.ArticleStatusPublished)
	}

	query := f.cache.Query("article", f.db).
		Filter("status = ?", models.ArticleStatusPublished).
		OrderBy("slug")

	payloads, total, err := query.Page(ctx, 2, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, payloads, 2)

	var view articleTestView
	require.NoError(t, json.Unmarshal(payloads[0], &view))
	require.Equal(t, "Article 2", view.Title)

	// Out-of-range pages are empty but keep the total.
	payloads, total, err = query.Page(ctx, 9, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Empty(t, payloads)
}

func TestQueryCount(t *testing.T) {
	f := newArticleFixture(t)
	ctx := context.Background()

	author := f.seedAuthor(t)
	f.seedArticle(t, author.ID, "One", "one", models.ArticleStatusPublished)
	f.seedArticle(t, author.ID, "Two", "two", models.ArticleStatusDraft)

	count, err := f.cache.Query("article", f.db).
		Filter("status = ?", models.ArticleStatusPublished).
		Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestQueryGetMissingRecord(t *testing.T) {
	f := newArticleFixture(t)

	_, ok, err := f.cache.Query("article", f.db).Get(context.Background(), "missing-pk")
	require.NoError(t, err)
	require.False(t, ok)
}
