package model

import (
	"time"
)

// Article 爬虫收集到的新闻文章
type Article struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	JobID       int64      `gorm:"not null;index;uniqueIndex:idx_job_url" json:"job_id"`
	Title       string     `gorm:"size:500" json:"title"`
	URL         string     `gorm:"size:750;not null;uniqueIndex:idx_job_url" json:"url"`
	Content     string     `gorm:"type:text" json:"content,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

func (Article) TableName() string {
	return "articles"
}
