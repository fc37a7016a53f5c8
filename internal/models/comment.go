package models

import (
	"strings"
)

// Comment represents reader feedback attached to an article.
type Comment struct {
	BaseModel

	ArticleID  string `gorm:"type:uuid;not null;index" json:"article_id"`
	AuthorName string `gorm:"type:varchar(120);not null" json:"author_name"`
	Body       string `gorm:"type:text;not null" json:"body"`

	Article *Article `gorm:"foreignKey:ArticleID" json:"-"`
}

// Normalise trims user supplied fields.
func (c *Comment) Normalise() {
	c.AuthorName = strings.TrimSpace(c.AuthorName)
	c.Body = strings.TrimSpace(c.Body)
}
