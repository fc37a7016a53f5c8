package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/models"
	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
	"github.com/charlesng35/viewcache/pkg/errors"
	"github.com/charlesng35/viewcache/pkg/response"
)

// ArticleHandler exposes HTTP endpoints for articles.
type ArticleHandler struct {
	svc   *services.ArticleService
	cache *viewcache.Cache
	db    *gorm.DB
}

// NewArticleHandler constructs an article handler.
func NewArticleHandler(svc *services.ArticleService, cache *viewcache.Cache, db *gorm.DB) *ArticleHandler {
	return &ArticleHandler{svc: svc, cache: cache, db: db}
}

// List returns a page of cached article payloads, newest first. Listings are
// restricted to published articles unless a status filter says otherwise.
func (h *ArticleHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)

	status := strings.ToLower(strings.TrimSpace(c.DefaultQuery("status", models.ArticleStatusPublished)))
	query := h.cache.Query(services.ModelArticle, h.db).
		Filter("status = ?", status).
		OrderBy("created_at DESC")

	if authorID := strings.TrimSpace(c.Query("author_id")); authorID != "" {
		query = query.Filter("author_id = ?", authorID)
	}

	hit, err := query.Cached(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	payloads, total, err := query.Page(ctx, page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CacheStatus(c, hit)
	response.SuccessWithMeta(c, http.StatusOK, payloads, response.PaginationMeta(page, perPage, total))
}

// Get returns a single cached article payload.
func (h *ArticleHandler) Get(c *gin.Context) {
	entry, ok, err := h.cache.GetInstance(requestContext(c), services.ModelArticle, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, errors.ErrNotFound)
		return
	}

	response.CacheStatus(c, entry.Hit)
	response.Success(c, http.StatusOK, entry.Payload)
}

// Create registers a new article.
func (h *ArticleHandler) Create(c *gin.Context) {
	var payload articlePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	article, err := h.svc.Create(requestContext(c), services.CreateArticleInput{
		Title:    payload.Title,
		Slug:     payload.Slug,
		Body:     payload.Body,
		Status:   payload.Status,
		Tags:     payload.Tags,
		AuthorID: payload.AuthorID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, article)
}

// Update applies a partial update to an article.
func (h *ArticleHandler) Update(c *gin.Context) {
	var payload updateArticlePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	article, err := h.svc.Update(requestContext(c), c.Param("id"), services.UpdateArticleInput{
		Title:  payload.Title,
		Slug:   payload.Slug,
		Body:   payload.Body,
		Status: payload.Status,
		Tags:   payload.Tags,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, article)
}

// Publish moves an article into the published status.
func (h *ArticleHandler) Publish(c *gin.Context) {
	article, err := h.svc.Publish(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, article)
}

// Delete removes an article and its comments.
func (h *ArticleHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type articlePayload struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Slug     string   `json:"slug" validate:"required,max=220"`
	Body     string   `json:"body"`
	Status   string   `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags     []string `json:"tags"`
	AuthorID string   `json:"author_id" validate:"required"`
}

type updateArticlePayload struct {
	Title  *string   `json:"title" validate:"omitempty,max=200"`
	Slug   *string   `json:"slug" validate:"omitempty,max=220"`
	Body   *string   `json:"body"`
	Status *string   `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags   *[]string `json:"tags"`
}
