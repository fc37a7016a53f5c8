package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/models"
	apperrors "github.com/charlesng35/viewcache/pkg/errors"
)

// CommentService manages reader comments.
type CommentService struct {
	db *gorm.DB
}

// CreateCommentInput describes a comment create payload.
type CreateCommentInput struct {
	ArticleID  string
	AuthorName string
	Body       string
}

// UpdateCommentInput describes a partial comment update.
type UpdateCommentInput struct {
	Body *string
}

// NewCommentService constructs a comment service.
func NewCommentService(db *gorm.DB) (*CommentService, error) {
	if db == nil {
		return nil, errors.New("comment service: db is required")
	}
	return &CommentService{db: db}, nil
}

// Create attaches a new comment to a published article.
func (s *CommentService) Create(ctx context.Context, input CreateCommentInput) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", input.ArticleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewBadRequest("article does not exist")
		}
		return nil, fmt.Errorf("comment service: load article: %w", err)
	}
	if !article.IsPublished() {
		return nil, apperrors.NewBadRequest("comments are only allowed on published articles")
	}

	comment := models.Comment{
		ArticleID:  article.ID,
		AuthorName: input.AuthorName,
		Body:       input.Body,
	}
	comment.Normalise()

	if comment.AuthorName == "" {
		return nil, apperrors.NewBadRequest("comment author name is required")
	}
	if comment.Body == "" {
		return nil, apperrors.NewBadRequest("comment body is required")
	}

	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("comment service: create comment: %w", err)
	}
	return &comment, nil
}

// Get returns a single comment.
func (s *CommentService) Get(ctx context.Context, commentID string) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	comment, err := loadComment(ctx, s.db, commentID)
	if err != nil {
		return nil, fmt.Errorf("comment service: %w", err)
	}
	if comment == nil {
		return nil, apperrors.ErrNotFound
	}
	return comment, nil
}

// Update edits the body of an existing comment.
func (s *CommentService) Update(ctx context.Context, commentID string, input UpdateCommentInput) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("comment service: load comment: %w", err)
	}

	if input.Body != nil {
		comment.Body = *input.Body
	}
	comment.Normalise()

	if comment.Body == "" {
		return nil, apperrors.NewBadRequest("comment body is required")
	}

	if err := s.db.WithContext(ctx).Save(&comment).Error; err != nil {
		return nil, fmt.Errorf("comment service: update comment: %w", err)
	}
	return &comment, nil
}

// Delete removes a comment.
func (s *CommentService) Delete(ctx context.Context, commentID string) error {
	ctx = ensureContext(ctx)

	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("comment service: load comment: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&comment).Error; err != nil {
		return fmt.Errorf("comment service: delete comment: %w", err)
	}
	return nil
}
