package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/models"
	apperrors "github.com/charlesng35/viewcache/pkg/errors"
)

// ArticleService manages article records.
type ArticleService struct {
	db *gorm.DB
}

// CreateArticleInput describes an article create payload.
type CreateArticleInput struct {
	Title    string
	Slug     string
	Body     string
	Status   string
	Tags     []string
	AuthorID string
}

// UpdateArticleInput describes a partial article update. Nil fields are left
// untouched.
type UpdateArticleInput struct {
	Title  *string
	Slug   *string
	Body   *string
	Status *string
	Tags   *[]string
}

// NewArticleService constructs an article service.
func NewArticleService(db *gorm.DB) (*ArticleService, error) {
	if db == nil {
		return nil, errors.New("article service: db is required")
	}
	return &ArticleService{db: db}, nil
}

// Create registers a new article for an existing author.
func (s *ArticleService) Create(ctx context.Context, input CreateArticleInput) (*models.Article, error) {
	ctx = ensureContext(ctx)

	authorID := strings.TrimSpace(input.AuthorID)
	if authorID == "" {
		return nil, apperrors.NewBadRequest("author id is required")
	}

	var author models.Author
	if err := s.db.WithContext(ctx).First(&author, "id = ?", authorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewBadRequest("author does not exist")
		}
		return nil, fmt.Errorf("article service: load author: %w", err)
	}

	article := models.Article{
		Title:    input.Title,
		Slug:     input.Slug,
		Body:     input.Body,
		Status:   input.Status,
		AuthorID: author.ID,
	}
	if article.Status == "" {
		article.Status = models.ArticleStatusDraft
	}
	article.Normalise()

	if article.Title == "" {
		return nil, apperrors.NewBadRequest("article title is required")
	}
	if article.Slug == "" {
		return nil, apperrors.NewBadRequest("article slug is required")
	}
	if !validArticleStatus(article.Status) {
		return nil, apperrors.NewBadRequest("invalid article status")
	}

	if len(input.Tags) > 0 {
		tags, err := encodeTags(input.Tags)
		if err != nil {
			return nil, err
		}
		article.Tags = tags
	}

	if err := s.db.WithContext(ctx).Create(&article).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("article service: create article: %w", err)
	}
	return &article, nil
}

// Get returns an article with its author and comment count populated.
func (s *ArticleService) Get(ctx context.Context, articleID string) (*models.Article, error) {
	ctx = ensureContext(ctx)

	article, err := loadArticle(ctx, s.db, articleID)
	if err != nil {
		return nil, fmt.Errorf("article service: %w", err)
	}
	if article == nil {
		return nil, apperrors.ErrNotFound
	}
	return article, nil
}

// Update applies a partial update to an article.
func (s *ArticleService) Update(ctx context.Context, articleID string, input UpdateArticleInput) (*models.Article, error) {
	ctx = ensureContext(ctx)

	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("article service: load article: %w", err)
	}

	if input.Title != nil {
		article.Title = *input.Title
	}
	if input.Slug != nil {
		article.Slug = *input.Slug
	}
	if input.Body != nil {
		article.Body = *input.Body
	}
	if input.Status != nil {
		article.Status = *input.Status
	}
	article.Normalise()

	if article.Title == "" {
		return nil, apperrors.NewBadRequest("article title is required")
	}
	if article.Slug == "" {
		return nil, apperrors.NewBadRequest("article slug is required")
	}
	if !validArticleStatus(article.Status) {
		return nil, apperrors.NewBadRequest("invalid article status")
	}

	if input.Tags != nil {
		tags, err := encodeTags(*input.Tags)
		if err != nil {
			return nil, err
		}
		article.Tags = tags
	}

	if err := s.db.WithContext(ctx).Save(&article).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("article service: update article: %w", err)
	}
	return &article, nil
}

// Publish transitions an article to the published status.
func (s *ArticleService) Publish(ctx context.Context, articleID string) (*models.Article, error) {
	status := models.ArticleStatusPublished
	return s.Update(ctx, articleID, UpdateArticleInput{Status: &status})
}

// Delete removes an article and its comments.
func (s *ArticleService) Delete(ctx context.Context, articleID string) error {
	ctx = ensureContext(ctx)

	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("article service: load article: %w", err)
	}

	if err := deleteArticleTree(ctx, s.db, &article); err != nil {
		return fmt.Errorf("article service: %w", err)
	}
	return nil
}

// deleteArticleTree removes an article and its comments. Comments are deleted
// as loaded records rather than by condition so per-row delete hooks fire.
func deleteArticleTree(ctx context.Context, db *gorm.DB, article *models.Article) error {
	var comments []models.Comment
	if err := db.WithContext(ctx).Find(&comments, "article_id = ?", article.ID).Error; err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	if len(comments) > 0 {
		if err := db.WithContext(ctx).Delete(&comments).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
	}

	if err := db.WithContext(ctx).Delete(article).Error; err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return nil
}

func validArticleStatus(status string) bool {
	switch status {
	case models.ArticleStatusDraft, models.ArticleStatusPublished, models.ArticleStatusArchived:
		return true
	default:
		return false
	}
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		cleaned = append(cleaned, tag)
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid tags payload")
	}
	return datatypes.JSON(data), nil
}
