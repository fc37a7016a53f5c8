package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
	"github.com/charlesng35/viewcache/pkg/errors"
	"github.com/charlesng35/viewcache/pkg/response"
)

// AuthorHandler exposes HTTP endpoints for authors. Reads are served from the
// serialized-object cache; writes go through the service and reach the cache
// via the invalidation hooks.
type AuthorHandler struct {
	svc   *services.AuthorService
	cache *viewcache.Cache
	db    *gorm.DB
}

// NewAuthorHandler constructs an author handler.
func NewAuthorHandler(svc *services.AuthorService, cache *viewcache.Cache, db *gorm.DB) *AuthorHandler {
	return &AuthorHandler{svc: svc, cache: cache, db: db}
}

// List returns a page of cached author payloads ordered by name.
func (h *AuthorHandler) List(c *gin.Context) {
	ctx := requestContext(c)
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)

	query := h.cache.Query(services.ModelAuthor, h.db).OrderBy("name ASC")

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

// Get returns a single cached author payload.
func (h *AuthorHandler) Get(c *gin.Context) {
	entry, ok, err := h.cache.GetInstance(requestContext(c), services.ModelAuthor, c.Param("id"))
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

// Create registers a new author.
func (h *AuthorHandler) Create(c *gin.Context) {
	var payload authorPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	author, err := h.svc.Create(requestContext(c), services.CreateAuthorInput{
		Name:  payload.Name,
		Email: payload.Email,
		Bio:   payload.Bio,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, author)
}

// Update applies a partial update to an author.
func (h *AuthorHandler) Update(c *gin.Context) {
	var payload updateAuthorPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	author, err := h.svc.Update(requestContext(c), c.Param("id"), services.UpdateAuthorInput{
		Name:  payload.Name,
		Email: payload.Email,
		Bio:   payload.Bio,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, author)
}

// Delete removes an author and their content.
func (h *AuthorHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type authorPayload struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Bio   string `json:"bio"`
}

type updateAuthorPayload struct {
	Name  *string `json:"name" validate:"omitempty,max=120"`
	Email *string `json:"email" validate:"omitempty,email"`
	Bio   *string `json:"bio"`
}
