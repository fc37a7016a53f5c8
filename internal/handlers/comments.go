package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
	"github.com/charlesng35/viewcache/pkg/response"
)

// CommentHandler exposes HTTP endpoints for article comments.
type CommentHandler struct {
	svc   *services.CommentService
	cache *viewcache.Cache
	db    *gorm.DB
}

// NewCommentHandler constructs a comment handler.
func NewCommentHandler(svc *services.CommentService, cache *viewcache.Cache, db *gorm.DB) *CommentHandler {
	return &CommentHandler{svc: svc, cache: cache, db: db}
}

// ListForArticle returns the cached comments of one article, oldest first.
func (h *CommentHandler) ListForArticle(c *gin.Context) {
	ctx := requestContext(c)
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	query := h.cache.Query(services.ModelComment, h.db).
		Filter("article_id = ?", c.Param("id")).
		OrderBy("created_at ASC")

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

// Create attaches a comment to the article in the path.
func (h *CommentHandler) Create(c *gin.Context) {
	var payload commentPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	comment, err := h.svc.Create(requestContext(c), services.CreateCommentInput{
		ArticleID:  c.Param("id"),
		AuthorName: payload.AuthorName,
		Body:       payload.Body,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, comment)
}

// Update edits a comment body.
func (h *CommentHandler) Update(c *gin.Context) {
	var payload updateCommentPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	comment, err := h.svc.Update(requestContext(c), c.Param("commentId"), services.UpdateCommentInput{
		Body: payload.Body,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, comment)
}

// Delete removes a comment.
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type commentPayload struct {
	AuthorName string `json:"author_name" validate:"required,max=120"`
	Body       string `json:"body" validate:"required"`
}

type updateCommentPayload struct {
	Body *string `json:"body" validate:"omitempty"`
}
