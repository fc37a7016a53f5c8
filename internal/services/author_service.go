package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/models"
	apperrors "github.com/charlesng35/viewcache/pkg/errors"
)

// AuthorService manages author records.
type AuthorService struct {
	db *gorm.DB
}

// CreateAuthorInput describes an author create payload.
type CreateAuthorInput struct {
	Name  string
	Email string
	Bio   string
}

// UpdateAuthorInput describes a partial author update. Nil fields are left
// untouched.
type UpdateAuthorInput struct {
	Name  *string
	Email *string
	Bio   *string
}

// NewAuthorService constructs an author service.
func NewAuthorService(db *gorm.DB) (*AuthorService, error) {
	if db == nil {
		return nil, errors.New("author service: db is required")
	}
	return &AuthorService{db: db}, nil
}

// Create registers a new author.
func (s *AuthorService) Create(ctx context.Context, input CreateAuthorInput) (*models.Author, error) {
	ctx = ensureContext(ctx)

	author := models.Author{
		Name:  input.Name,
		Email: input.Email,
		Bio:   strings.TrimSpace(input.Bio),
	}
	author.Normalise()

	if author.Name == "" {
		return nil, apperrors.NewBadRequest("author name is required")
	}
	if author.Email == "" {
		return nil, apperrors.NewBadRequest("author email is required")
	}

	if err := s.db.WithContext(ctx).Create(&author).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("author service: create author: %w", err)
	}
	return &author, nil
}

// Get returns an author with its article count populated.
func (s *AuthorService) Get(ctx context.Context, authorID string) (*models.Author, error) {
	ctx = ensureContext(ctx)

	author, err := loadAuthor(ctx, s.db, authorID)
	if err != nil {
		return nil, fmt.Errorf("author service: %w", err)
	}
	if author == nil {
		return nil, apperrors.ErrNotFound
	}
	return author, nil
}

// Update applies a partial update to an author.
func (s *AuthorService) Update(ctx context.Context, authorID string, input UpdateAuthorInput) (*models.Author, error) {
	ctx = ensureContext(ctx)

	var author models.Author
	if err := s.db.WithContext(ctx).First(&author, "id = ?", authorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("author service: load author: %w", err)
	}

	if input.Name != nil {
		author.Name = *input.Name
	}
	if input.Email != nil {
		author.Email = *input.Email
	}
	if input.Bio != nil {
		author.Bio = strings.TrimSpace(*input.Bio)
	}
	author.Normalise()

	if author.Name == "" {
		return nil, apperrors.NewBadRequest("author name is required")
	}
	if author.Email == "" {
		return nil, apperrors.NewBadRequest("author email is required")
	}

	if err := s.db.WithContext(ctx).Save(&author).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("author service: update author: %w", err)
	}
	return &author, nil
}

// Delete removes an author together with their articles and comments. Records
// are deleted one level at a time so the cache invalidation hooks see every
// affected row.
func (s *AuthorService) Delete(ctx context.Context, authorID string) error {
	ctx = ensureContext(ctx)

	var author models.Author
	if err := s.db.WithContext(ctx).First(&author, "id = ?", authorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("author service: load author: %w", err)
	}

	var articles []models.Article
	if err := s.db.WithContext(ctx).Find(&articles, "author_id = ?", author.ID).Error; err != nil {
		return fmt.Errorf("author service: list articles: %w", err)
	}

	for i := range articles {
		if err := deleteArticleTree(ctx, s.db, &articles[i]); err != nil {
			return fmt.Errorf("author service: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).Delete(&author).Error; err != nil {
		return fmt.Errorf("author service: delete author: %w", err)
	}
	return nil
}
