package dto

import (
	"time"

	"github.com/qs3c/scrape_go_server/internal/model"
)

// CreateJobRequest 创建爬取任务请求
type CreateJobRequest struct {
	CrawlerRef string         `json:"crawler_ref" binding:"required,max=100"`
	Name       string         `json:"name" binding:"required,max=200"`
	IsAuto     bool           `json:"is_auto"`
	CronExpr   *string        `json:"cron_expr,omitempty" binding:"omitempty,max=100"`
	Args       *model.JobArgs `json:"args,omitempty"`
	Notes      string         `json:"notes,omitempty" binding:"omitempty,max=2000"`
}

// UpdateJobRequest 更新爬取任务请求。crawler_ref 与 created_at 不可变，
// 不在此结构中出现。
type UpdateJobRequest struct {
	Name     *string        `json:"name,omitempty" binding:"omitempty,max=200"`
	IsAuto   *bool          `json:"is_auto,omitempty"`
	IsActive *bool          `json:"is_active,omitempty"`
	CronExpr *string        `json:"cron_expr,omitempty" binding:"omitempty,max=100"`
	Args     *model.JobArgs `json:"args,omitempty"`
	Notes    *string        `json:"notes,omitempty" binding:"omitempty,max=2000"`
}

// SearchJobsRequest 任务谓词搜索请求
type SearchJobsRequest struct {
	NameLike    string `json:"name_like,omitempty"`
	CrawlerRef  string `json:"crawler_ref,omitempty"`
	IsAuto      *bool  `json:"is_auto,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
	IsScheduled *bool  `json:"is_scheduled,omitempty"`
	Status      string `json:"status,omitempty"`
	Phase       string `json:"phase,omitempty"`

	// 嵌套参数过滤
	AIOnly     *bool  `json:"ai_only,omitempty"`
	MaxPages   *int   `json:"max_pages,omitempty"`
	ScrapeMode string `json:"scrape_mode,omitempty"`
	SaveToCSV  *bool  `json:"to_csv,omitempty"`

	// 范围过滤
	RetryCountMin *int       `json:"retry_count_min,omitempty"`
	RetryCountMax *int       `json:"retry_count_max,omitempty"`
	LastRunFrom   *time.Time `json:"last_run_from,omitempty"`
	LastRunTo     *time.Time `json:"last_run_to,omitempty"`

	// 存在性过滤
	HasNotes *bool `json:"has_notes,omitempty"`

	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty" binding:"omitempty,oneof=asc desc"`
	Page      int    `json:"page,omitempty" binding:"omitempty,min=1"`
	PageSize  int    `json:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// RunJobRequest 触发执行请求
type RunJobRequest struct {
	Async bool   `json:"async"`
	Mode  string `json:"mode,omitempty" binding:"omitempty,oneof=full links content"`
}

// RunJobResponse 触发执行响应
type RunJobResponse struct {
	JobID     int64  `json:"job_id"`
	HistoryID int64  `json:"history_id,omitempty"`
	Submitted bool   `json:"submitted"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// JobStatusResponse 任务状态查询响应
type JobStatusResponse struct {
	JobID          int64  `json:"job_id"`
	Status         string `json:"status"`
	Phase          string `json:"phase"`
	Progress       int    `json:"progress"` // 仅供展示，不参与控制
	Message        string `json:"message,omitempty"`
	ItemsCollected int    `json:"items_collected"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
}

// HistoryListItem 执行历史列表项
type HistoryListItem struct {
	ID             int64  `json:"id"`
	JobID          int64  `json:"job_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time,omitempty"`
	Success        *bool  `json:"success,omitempty"`
	Message        string `json:"message,omitempty"`
	ItemsCollected int    `json:"items_collected"`
	Status         string `json:"status"`
}

// RetryResponse 重试计数操作响应
type RetryResponse struct {
	JobID      int64 `json:"job_id"`
	RetryCount int   `json:"retry_count"`
	MaxRetries int   `json:"max_retries"`
	Exceeded   bool  `json:"exceeded"`
}
