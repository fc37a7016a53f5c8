package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/models"
	"github.com/charlesng35/viewcache/internal/viewcache"
)

// Registry model names. The GORM plugin derives the same names from schema
// names, so they must stay lower-case singular.
const (
	ModelAuthor  = "author"
	ModelArticle = "article"
	ModelComment = "comment"
)

// AuthorView is the cached representation of an author.
type AuthorView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Bio          string    `json:"bio,omitempty"`
	ArticleCount int64     `json:"article_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ArticleView is the cached representation of an article.
type ArticleView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Body         string    `json:"body"`
	Status       string    `json:"status"`
	Tags         []string  `json:"tags,omitempty"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name,omitempty"`
	CommentCount int64     `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CommentView is the cached representation of a comment.
type CommentView struct {
	ID         string    `json:"id"`
	ArticleID  string    `json:"article_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// RegisterBindings wires the author, article and comment models into the
/// registry: how each is loaded, how its cached payload is built, and which
// upstream entries a change invalidates. Comments invalidate their article
// immediately; articles refresh their author asynchronously.
func RegisterBindings(registry *viewcache.Registry, db *gorm.DB) error {
	if registry == nil {
		return errors.New("services: registry is required")
	}
	if db == nil {
		return errors.New("services: db is required")
	}

	if err := registry.Register(ModelAuthor, viewcache.Binding{
		Prototype:  &models.Author{},
		Serializer: serializeAuthor,
		Loader: func(ctx context.Context, pk string) (any, error) {
			author, err := loadAuthor(ctx, db, pk)
			if err != nil || author == nil {
				return nil, err
			}
			return author, nil
		},
	}); err != nil {
		return err
	}

	if err := registry.Register(ModelArticle, viewcache.Binding{
		Prototype:  &models.Article{},
		Serializer: serializeArticle,
		Loader: func(ctx context.Context, pk string) (any, error) {
			article, err := loadArticle(ctx, db, pk)
			if err != nil || article == nil {
				return nil, err
			}
			return article, nil
		},
		Invalidator: func(instance any) []viewcache.Invalidation {
			article, ok := instance.(*models.Article)
			if !ok || article.AuthorID == "" {
				return nil
			}
			return []viewcache.Invalidation{
				{Model: ModelAuthor, PK: article.AuthorID},
			}
		},
	}); err != nil {
		return err
	}

	return registry.Register(ModelComment, viewcache.Binding{
		Prototype:  &models.Comment{},
		Serializer: serializeComment,
		Loader: func(ctx context.Context, pk string) (any, error) {
			comment, err := loadComment(ctx, db, pk)
			if err != nil || comment == nil {
				return nil, err
			}
			return comment, nil
		},
		Invalidator: func(instance any) []viewcache.Invalidation {
			comment, ok := instance.(*models.Comment)
			if !ok || comment.ArticleID == "" {
				return nil
			}
			return []viewcache.Invalidation{
				{Model: ModelArticle, PK: comment.ArticleID, Immediate: true},
			}
		},
	})
}

func loadAuthor(ctx context.Context, db *gorm.DB, pk string) (*models.Author, error) {
	var author models.Author
	err := db.WithContext(ctx).Take(&author, "id = ?", pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load author %s: %w", pk, err)
	}

	if err := db.WithContext(ctx).Model(&models.Article{}).
		Where("author_id = ?", author.ID).
		Count(&author.ArticleCount).Error; err != nil {
		return nil, fmt.Errorf("count articles for author %s: %w", pk, err)
	}
	return &author, nil
}

func loadArticle(ctx context.Context, db *gorm.DB, pk string) (*models.Article, error) {
	var article models.Article
	err := db.WithContext(ctx).Preload("Author").Take(&article, "id = ?", pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load article %s: %w", pk, err)
	}

	if err := db.WithContext(ctx).Model(&models.Comment{}).
		Where("article_id = ?", article.ID).
		Count(&article.CommentCount).Error; err != nil {
		return nil, fmt.Errorf("count comments for article %s: %w", pk, err)
	}
	return &article, nil
}

func loadComment(ctx context.Context, db *gorm.DB, pk string) (*models.Comment, error) {
	var comment models.Comment
	err := db.WithContext(ctx).Take(&comment, "id = ?", pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load comment %s: %w", pk, err)
	}
	return &comment, nil
}

func serializeAuthor(instance any) ([]byte, error) {
	author, ok := instance.(*models.Author)
	if !ok {
		return nil, fmt.Errorf("services: unexpected author instance %T", instance)
	}
	return json.Marshal(AuthorView{
		ID:           author.ID,
		Name:         author.Name,
		Email:        author.Email,
		Bio:          author.Bio,
		ArticleCount: author.ArticleCount,
		CreatedAt:    author.CreatedAt,
		UpdatedAt:    author.UpdatedAt,
	})
}

func serializeArticle(instance any) ([]byte, error) {
	article, ok := instance.(*models.Article)
	if !ok {
		return nil, fmt.Errorf("services: unexpected article instance %T", instance)
	}

	view := ArticleView{
		ID:           article.ID,
		Title:        article.Title,
		Slug:         article.Slug,
		Body:         article.Body,
		Status:       article.Status,
		Tags:         decodeTags(article.Tags),
		AuthorID:     article.AuthorID,
		CommentCount: article.CommentCount,
		CreatedAt:    article.CreatedAt,
		UpdatedAt:    article.UpdatedAt,
	}
	if article.Author != nil {
		view.AuthorName = article.Author.Name
	}
	return json.Marshal(view)
}

func serializeComment(instance any) ([]byte, error) {
	comment, ok := instance.(*models.Comment)
	if !ok {
		return nil, fmt.Errorf("services: unexpected comment instance %T", instance)
	}
	return json.Marshal(CommentView{
		ID:         comment.ID,
		ArticleID:  comment.ArticleID,
		AuthorName: comment.AuthorName,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	})
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
