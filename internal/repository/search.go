package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/model"
)

// ErrInvalidSortField 排序字段不在白名单内
var ErrInvalidSortField = errors.New("无效的排序字段")

// JobFilter 任务搜索过滤条件，所有条件按 AND 组合
type JobFilter struct {
	NameLike    string
	CrawlerRef  string
	IsAuto      *bool
	IsActive    *bool
	IsScheduled *bool
	Status      *model.TaskStatus
	Phase       *model.ScrapePhase

	// 嵌套参数过滤，对存储的 JSON args 列求值
	AIOnly     *bool
	MaxPages   *int
	ScrapeMode string
	SaveToCSV  *bool

	// 数值/日期范围
	RetryCountMin *int
	RetryCountMax *int
	LastRunFrom   *time.Time
	LastRunTo     *time.Time

	// 存在性
	HasNotes *bool
}

// JobSort 排序说明
type JobSort struct {
	Field string // 空值表示默认排序 created_at DESC
	Desc  bool
}

// Page 分页窗口
type Page struct {
	Page     int
	PageSize int
}

// 可排序字段 -> 列名白名单
var sortColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"crawler_ref": "crawler_ref",
	"status":      "status",
	"phase":       "phase",
	"retry_count": "retry_count",
	"last_run_at": "last_run_at",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

// Search 过滤 + 排序 + 分页的任务视图。total 独立于分页窗口计算。
func (r *JobRepository) Search(filter JobFilter, sort JobSort, page Page) ([]*model.ScrapeJob, int64, error) {
	query := r.db.Model(&model.ScrapeJob{})
	query = applyFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, err := buildOrder(sort)
	if err != nil {
		return nil, 0, err
	}

	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = 20
	}
	offset := (page.Page - 1) * page.PageSize

	var jobs []*model.ScrapeJob
	if err := query.Order(order).Offset(offset).Limit(page.PageSize).Find(&jobs).Error; err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

func applyFilter(query *gorm.DB, f JobFilter) *gorm.DB {
	if f.NameLike != "" {
		query = query.Where("name LIKE ?", "%"+f.NameLike+"%")
	}
	if f.CrawlerRef != "" {
		query = query.Where("crawler_ref = ?", f.CrawlerRef)
	}
	if f.IsAuto != nil {
		query = query.Where("is_auto = ?", *f.IsAuto)
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if f.IsScheduled != nil {
		query = query.Where("is_scheduled = ?", *f.IsScheduled)
	}
	if f.Status != nil {
		query = query.Where("status = ?", string(*f.Status))
	}
	if f.Phase != nil {
		query = query.Where("phase = ?", string(*f.Phase))
	}

	// json_extract 在 MySQL 与 SQLite 下行为一致，布尔统一按 1/0 比较
	if f.AIOnly != nil {
		query = query.Where("json_extract(args, '$.ai_only') = ?", boolToInt(*f.AIOnly))
	}
	if f.MaxPages != nil {
		query = query.Where("json_extract(args, '$.max_pages') = ?", *f.MaxPages)
	}
	if f.ScrapeMode != "" {
		query = query.Where("json_extract(args, '$.scrape_mode') = ?", f.ScrapeMode)
	}
	if f.SaveToCSV != nil {
		query = query.Where("json_extract(args, '$.to_csv') = ?", boolToInt(*f.SaveToCSV))
	}

	if f.RetryCountMin != nil {
		query = query.Where("retry_count >= ?", *f.RetryCountMin)
	}
	if f.RetryCountMax != nil {
		query = query.Where("retry_count <= ?", *f.RetryCountMax)
	}
	if f.LastRunFrom != nil {
		query = query.Where("last_run_at >= ?", *f.LastRunFrom)
	}
	if f.LastRunTo != nil {
		query = query.Where("last_run_at <= ?", *f.LastRunTo)
	}

	if f.HasNotes != nil {
		if *f.HasNotes {
			query = query.Where("notes IS NOT NULL AND notes != ''")
		} else {
			query = query.Where("notes IS NULL OR notes = ''")
		}
	}

	return query
}

func buildOrder(sort JobSort) (string, error) {
	if sort.Field == "" {
		return "created_at DESC", nil
	}
	column, ok := sortColumns[sort.Field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSortField, sort.Field)
	}
	if sort.Desc {
		return column + " DESC", nil
	}
	return column + " ASC", nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
