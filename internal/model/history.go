package model

import (
	"time"
)

// ScrapeHistory 单次执行记录，与 ScrapeJob 一对多。
// 执行开始时创建（status=running, end_time 为空），执行结束时更新同一行，
// 永不替换。end_time 非空是轮询方判断"已结束"的唯一依据。
type ScrapeHistory struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	JobID          int64      `gorm:"not null;index" json:"job_id"`
	StartTime      time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Success        *bool      `json:"success,omitempty"` // nil 表示尚未有结论
	Message        string     `gorm:"type:text" json:"message,omitempty"`
	ItemsCollected int        `gorm:"default:0" json:"items_collected"`
	Status         TaskStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ScrapeHistory) TableName() string {
	return "scrape_histories"
}

// Concluded 是否已结束
func (h *ScrapeHistory) Concluded() bool {
	return h.EndTime != nil
}
