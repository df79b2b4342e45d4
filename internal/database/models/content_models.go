package models

import "time"

const (
	PostDraft     = "DRAFT"
	PostPublished = "PUBLISHED"
)

type SystemSetting struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key         string     `gorm:"uniqueIndex;not null" json:"key"`
	Value       JSONValue  `gorm:"type:text" json:"value"`
	Description string     `json:"description,omitempty"`
	UpdatedBy   *int64     `json:"updatedBy,omitempty"`
	CreatedAt   *time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type Post struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug"`
	Excerpt     string     `gorm:"type:text" json:"excerpt,omitempty"`
	Content     string     `gorm:"type:text" json:"content"`
	CoverImage  string     `json:"coverImage,omitempty"`
	Status      string     `gorm:"not null;index" json:"status"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	AuthorID    *int64     `json:"authorId,omitempty"`
	CreatedAt   *time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

type FAQ struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Question  string     `gorm:"not null" json:"question"`
	Answer    string     `gorm:"type:text;not null" json:"answer"`
	Category  string     `gorm:"index" json:"category,omitempty"`
	SortOrder int        `gorm:"not null" json:"sortOrder"`
	IsActive  bool       `gorm:"not null" json:"isActive"`
	CreatedAt *time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (FAQ) TableName() string { return "faqs" }
