package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Article statuses. Only published articles appear in public listings.
const (
	ArticleStatusDraft     = "draft"
	ArticleStatusPublished = "published"
	ArticleStatusArchived  = "archived"
)

// Article represents a publishable document served through the cached view layer.
type Article struct {
	BaseModel

	Title    string         `gorm:"type:varchar(200);not null" json:"title"`
	Slug     string         `gorm:"type:varchar(220);not null;uniqueIndex" json:"slug"`
	Body     string         `gorm:"type:text" json:"body"`
	Status   string         `gorm:"type:varchar(20);not null;index;default:draft" json:"status"`
	Tags     datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	AuthorID string         `gorm:"type:uuid;not null;index" json:"author_id"`

	Author   *Author   `gorm:"foreignKey:AuthorID" json:"-"`
	Comments []Comment `gorm:"foreignKey:ArticleID" json:"-"`

	// CommentCount is populated by loaders for serialization; it is not a column.
	CommentCount int64 `gorm:"-" json:"-"`
}

// Normalise canonicalises status and slug values.
func (a *Article) Normalise() {
	a.Status = strings.ToLower(strings.TrimSpace(a.Status))
	a.Slug = strings.ToLower(strings.TrimSpace(a.Slug))
	a.Title = strings.TrimSpace(a.Title)
}

// IsPublished reports whether the article is visible in public listings.
func (a *Article) IsPublished() bool {
	return a.Status == ArticleStatusPublished
}
