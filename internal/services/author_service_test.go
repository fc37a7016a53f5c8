package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/database/testutil"
	"github.com/charlesng35/viewcache/internal/models"
	apperrors "github.com/charlesng35/viewcache/pkg/errors"
)

func TestAuthorServiceCreateNormalisesAndValidates(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	svc, err := NewAuthorService(db)
	require.NoError(t, err)

	author, err := svc.Create(context.Background(), CreateAuthorInput{
		Name:  "  Ada Lovelace ",
		Email: " Ada@Example.COM ",
	})
	require.NoError(t, err)
	require.NotEmpty(t, author.ID)
	require.Equal(t, "Ada Lovelace", author.Name)
	require.Equal(t, "ada@example.com", author.Email)

	_, err = svc.Create(context.Background(), CreateAuthorInput{Email: "x@example.com"})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 400, appErr.StatusCode)
}

func TestAuthorServiceCreateDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	svc, err := NewAuthorService(db)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateAuthorInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateAuthorInput{Name: "Other", Email: "ada@example.com"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAuthorServiceGetPopulatesArticleCount(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	authorSvc, err := NewAuthorService(db)
	require.NoError(t, err)
	articleSvc, err := NewArticleService(db)
	require.NoError(t, err)

	author, err := authorSvc.Create(context.Background(), CreateAuthorInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	for _, slug := range []string{"one", "two"} {
		_, err = articleSvc.Create(context.Background(), CreateArticleInput{
			Title:    "Title " + slug,
			Slug:     slug,
			AuthorID: author.ID,
		})
		require.NoError(t, err)
	}

	loaded, err := authorSvc.Get(context.Background(), author.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.ArticleCount)

	_, err = authorSvc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuthorServiceUpdatePartial(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	svc, err := NewAuthorService(db)
	require.NoError(t, err)

	author, err := svc.Create(context.Background(), CreateAuthorInput{Name: "Ada", Email: "ada@example.com", Bio: "maths"})
	require.NoError(t, err)

	name := "Ada Lovelace"
	updated, err := svc.Update(context.Background(), author.ID, UpdateAuthorInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", updated.Name)
	require.Equal(t, "ada@example.com", updated.Email)
	require.Equal(t, "maths", updated.Bio)
}

func TestAuthorServiceDeleteCascades(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	authorSvc, err := NewAuthorService(db)
	require.NoError(t, err)
	articleSvc, err := NewArticleService(db)
	require.NoError(t, err)
	commentSvc, err := NewCommentService(db)
	require.NoError(t, err)

	author, err := authorSvc.Create(context.Background(), CreateAuthorInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	article, err := articleSvc.Create(context.Background(), CreateArticleInput{
		Title:    "Post",
		Slug:     "post",
		Status:   models.ArticleStatusPublished,
		AuthorID: author.ID,
	})
	require.NoError(t, err)

	_, err = commentSvc.Create(context.Background(), CreateCommentInput{
		ArticleID:  article.ID,
		AuthorName: "Reader",
		Body:       "nice",
	})
	require.NoError(t, err)

	require.NoError(t, authorSvc.Delete(context.Background(), author.ID))

	var count int64
	require.NoError(t, db.Model(&models.Article{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.Comment{}).Count(&count).Error)
	require.Zero(t, count)

	err = db.First(&models.Author{}, "id = ?", author.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
