package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/viewcache/internal/models"
	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/pkg/response"
)

func TestCommentListOrderedOldestFirst(t *testing.T) {
	f := newAPIFixture(t)

	author := f.createAuthor(t, "Ada", "ada@example.com")
	article := f.createArticle(t, author.ID, "Discussed", "discussed", models.ArticleStatusPublished, nil)
	f.createComment(t, article.ID, "First", "I was here first")
	time.Sleep(5 * time.Millisecond)
	f.createComment(t, article.ID, "Second", "me next")
	f.worker.Flush()

	rec := f.do(t, http.MethodGet, "/api/articles/"+article.ID+"/comments", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "MISS", rec.Header().Get(response.CacheStatusHeader))

	views := decodeData[[]services.CommentView](t, rec)
	require.Len(t, views, 2)
	require.Equal(t, "First", views[0].AuthorName)
	require.Equal(t, "Second", views[1].AuthorName)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Meta)
	require.Equal(t, 2, env.Meta.Total)

	rec = f.do(t, http.MethodGet, "/api/articles/"+article.ID+"/comments", nil)
	require.Equal(t, "HIT", rec.Header().Get(response.CacheStatusHeader))
}

func TestCommentCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	author := f.createAuthor(t, "Ada", "ada@example.com")
	article := f.createArticle(t, author.ID, "Strict", "strict", models.ArticleStatusPublished, nil)

	rec := f.do(t, http.MethodPost, "/api/articles/"+article.ID+"/comments", gin.H{"author_name": "Reader"})
	requireErrorCode(t, rec, http.StatusBadRequest, "BAD_REQUEST")
}

func TestCommentUpdateRefreshesCachedBody(t *testing.T) {
	f := newAPIFixture(t)

	author := f.createAuthor(t, "Ada", "ada@example.com")
	article := f.createArticle(t, author.ID, "Edited", "edited", models.ArticleStatusPublished, nil)
	comment := f.createComment(t, article.ID, "Reader", "typo'd bodyy")
	f.worker.Flush()

	rec := f.do(t, http.MethodPatch, "/api/articles/"+article.ID+"/comments/"+comment.ID, gin.H{"body": "fixed body"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f.worker.Flush()

	rec = f.do(t, http.MethodGet, "/api/articles/"+article.ID+"/comments", nil)
	views := decodeData[[]services.CommentView](t, rec)
	require.Len(t, views, 1)
	require.Equal(t, "fixed body", views[0].Body)
}

func TestCommentDeleteRefreshesArticleCount(t *testing.T) {
	f := newAPIFixture(t)

	author := f.createAuthor(t, "Ada", "ada@example.com")
	article := f.createArticle(t, author.ID, "Counted", "counted", models.ArticleStatusPublished, nil)
	comment := f.createComment(t, article.ID, "Reader", "ephemeral")
	f.worker.Flush()

	rec := f.do(t, http.MethodDelete, "/api/articles/"+article.ID+"/comments/"+comment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f.worker.Flush()

	rec = f.do(t, http.MethodGet, "/api/articles/"+article.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[services.ArticleView](t, rec)
	require.Zero(t, view.CommentCount)

	rec = f.do(t, http.MethodGet, "/api/articles/"+article.ID+"/comments", nil)
	views := decodeData[[]services.CommentView](t, rec)
	require.Empty(t, views)
}
