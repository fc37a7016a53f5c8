package models

import (
	"strings"
)

// Author represents a content author whose serialized profile is cached.
type Author struct {
	BaseModel

	Name  string `gorm:"type:varchar(120);not null" json:"name"`
	Email string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Bio   string `gorm:"type:text" json:"bio,omitempty"`

	Articles []Article `gorm:"foreignKey:AuthorID" json:"-"`

	// ArticleCount is populated by loaders for serialization; it is not a column.
	ArticleCount int64 `gorm:"-" json:"-"`
}

// Normalise lower-cases and trims the email address.
func (a *Author) Normalise() {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Name = strings.TrimSpace(a.Name)
}
