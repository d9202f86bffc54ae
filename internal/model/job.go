package model

import (
	"time"
)

// ScrapeJob 一条可调度的爬取任务定义
type ScrapeJob struct {
	ID          int64       `gorm:"primaryKey" json:"id"`
	CrawlerRef  string      `gorm:"size:100;not null;index" json:"crawler_ref"` // 创建后不可变
	Name        string      `gorm:"size:200;not null" json:"name"`
	IsAuto      bool        `gorm:"default:false;index" json:"is_auto"`  // 是否参与 cron 调度
	IsActive    bool        `gorm:"default:true;index" json:"is_active"` // 软删除/启用开关
	IsScheduled bool        `gorm:"default:false" json:"is_scheduled"`   // 当前是否已注册触发器（由调度器维护）
	CronExpr    *string     `gorm:"size:100" json:"cron_expr,omitempty"` // is_auto 时必填
	Args        JobArgs     `gorm:"type:json" json:"args"`
	Phase       ScrapePhase `gorm:"size:20;default:init;index" json:"phase"`
	Status      TaskStatus  `gorm:"size:20;default:init;index" json:"status"`
	RetryCount  int         `gorm:"default:0" json:"retry_count"`

	LastRunAt      *time.Time `gorm:"index" json:"last_run_at,omitempty"`
	LastRunSuccess *bool      `json:"last_run_success,omitempty"`
	LastRunMessage string     `gorm:"type:text" json:"last_run_message,omitempty"`

	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"` // 创建后不可变
	UpdatedAt time.Time `json:"updated_at"`
}

func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}

// CronExprValue CronExpr 的便捷取值
func (j *ScrapeJob) CronExprValue() string {
	if j.CronExpr == nil {
		return ""
	}
	return *j.CronExpr
}
