package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/database/testutil"
	"github.com/charlesng35/viewcache/internal/models"
	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
	"github.com/charlesng35/viewcache/pkg/response"
)

type apiFixture struct {
	db     *gorm.DB
	store  *cache.MemoryStore
	cache  *viewcache.Cache
	worker *viewcache.Worker
	engine *gin.Engine
}

// newAPIFixture wires the full read/write path the server runs in production:
// sqlite, the in-process store, the invalidation worker and the GORM hooks.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	// Write hooks fire inside GORM's default transaction while the worker
	// reloads rows through the loaders. Skip the wrapping transaction so the
	// reloads see committed state deterministically.
	db = db.Session(&gorm.Session{SkipDefaultTransaction: true})

	store := cache.NewMemoryStore()
	t.Cleanup(store.Stop)

	registry := viewcache.NewRegistry()
	require.NoError(t, services.RegisterBindings(registry, db))

	vc, err := viewcache.New(store, registry, viewcache.Options{})
	require.NoError(t, err)

	worker, err := viewcache.NewWorker(vc, 32)
	require.NoError(t, err)
	worker.Start()
	t.Cleanup(func() {
		_ = worker.Stop(context.Background())
	})

	plugin, err := viewcache.NewPlugin(worker, registry)
	require.NoError(t, err)
	require.NoError(t, db.Use(plugin))

	authorSvc, err := services.NewAuthorService(db)
	require.NoError(t, err)
	articleSvc, err := services.NewArticleService(db)
	require.NoError(t, err)
	commentSvc, err := services.NewCommentService(db)
	require.NoError(t, err)

	authorHandler := NewAuthorHandler(authorSvc, vc, db)
	articleHandler := NewArticleHandler(articleSvc, vc, db)
	commentHandler := NewCommentHandler(commentSvc, vc, db)

	engine := gin.New()
	api := engine.Group("/api")

	authors := api.Group("/authors")
	authors.GET("", authorHandler.List)
	authors.GET("/:id", authorHandler.Get)
	authors.POST("", authorHandler.Create)
	authors.PATCH("/:id", authorHandler.Update)
	authors.DELETE("/:id", authorHandler.Delete)

	articles := api.Group("/articles")
	articles.GET("", articleHandler.List)
	articles.GET("/:id", articleHandler.Get)
	articles.POST("", articleHandler.Create)
	articles.PATCH("/:id", articleHandler.Update)
	articles.POST("/:id/publish", articleHandler.Publish)
	articles.DELETE("/:id", articleHandler.Delete)
	articles.GET("/:id/comments", commentHandler.ListForArticle)
	articles.POST("/:id/comments", commentHandler.Create)
	articles.PATCH("/:id/comments/:commentId", commentHandler.Update)
	articles.DELETE("/:id/comments/:commentId", commentHandler.Delete)

	return &apiFixture{db: db, store: store, cache: vc, worker: worker, engine: engine}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, "expected a success envelope, got %s", rec.Body.String())

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	require.Equal(t, status, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, code, env.Error.Code)
}

func (f *apiFixture) createAuthor(t *testing.T, name, email string) models.Author {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/authors", gin.H{"name": name, "email": email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[models.Author](t, rec)
}

func (f *apiFixture) createArticle(t *testing.T, authorID, title, slug, status string, tags []string) models.Article {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/articles", gin.H{
		"title":     title,
		"slug":      slug,
		"body":      "body of " + title,
		"status":    status,
		"tags":      tags,
		"author_id": authorID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[models.Article](t, rec)
}

func (f *apiFixture) createComment(t *testing.T, articleID, authorName, body string) models.Comment {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/articles/"+articleID+"/comments", gin.H{
		"author_name": authorName,
		"body":        body,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[models.Comment](t, rec)
}
