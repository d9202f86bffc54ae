package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/pkg/cronutil"
)

// ErrImmutableField 更新请求试图修改不可变字段
var ErrImmutableField = errors.New("crawler_ref 与 created_at 创建后不可修改")

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create 原样保存任务行。参数补全是 service 层的事，
// 这里不能再动 Args，否则显式的零值会被冲掉。
func (r *JobRepository) Create(job *model.ScrapeJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.ScrapeJob, error) {
	var job model.ScrapeJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update 保存整行。拒绝对不可变字段的修改。
func (r *JobRepository) Update(job *model.ScrapeJob) error {
	var current model.ScrapeJob
	if err := r.db.Select("crawler_ref", "created_at").Where("id = ?", job.ID).First(&current).Error; err != nil {
		return err
	}
	if job.CrawlerRef != current.CrawlerRef {
		return ErrImmutableField
	}
	if !job.CreatedAt.IsZero() && !job.CreatedAt.Equal(current.CreatedAt) {
		return ErrImmutableField
	}
	job.CreatedAt = current.CreatedAt
	return r.db.Save(job).Error
}

// UpdateFields 按字段更新。args 总是整值写入，不做嵌套键修改。
func (r *JobRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	if _, ok := fields["crawler_ref"]; ok {
		return ErrImmutableField
	}
	if _, ok := fields["created_at"]; ok {
		return ErrImmutableField
	}
	return r.db.Model(&model.ScrapeJob{}).Where("id = ?", id).Updates(fields).Error
}

func (r *JobRepository) Delete(id int64) error {
	return r.db.Delete(&model.ScrapeJob{}, id).Error
}

// ListAutoActive 列出所有参与调度且启用的任务
func (r *JobRepository) ListAutoActive() ([]*model.ScrapeJob, error) {
	var jobs []*model.ScrapeJob
	err := r.db.Where("is_auto = ? AND is_active = ?", true, true).
		Order("id ASC").
		Find(&jobs).Error
	return jobs, err
}

// FindByCron 查找使用指定 cron 表达式的自动任务
func (r *JobRepository) FindByCron(expr string) ([]*model.ScrapeJob, error) {
	var jobs []*model.ScrapeJob
	err := r.db.Where("is_auto = ? AND is_active = ? AND cron_expr = ?", true, true, expr).
		Order("id ASC").
		Find(&jobs).Error
	return jobs, err
}

// FindDue 查找指定表达式下当前到期的任务。
// 到期判定见 cronutil.IsDue；非自动或停用的任务永不到期。
func (r *JobRepository) FindDue(expr string, now time.Time) ([]*model.ScrapeJob, error) {
	jobs, err := r.FindByCron(expr)
	if err != nil {
		return nil, err
	}

	due := make([]*model.ScrapeJob, 0, len(jobs))
	for _, job := range jobs {
		ok, err := cronutil.IsDue(expr, job.LastRunAt, now)
		if err != nil {
			return nil, err
		}
		if ok {
			due = append(due, job)
		}
	}
	return due, nil
}

// SetScheduled 调度器专用：维护 is_scheduled 标记
func (r *JobRepository) SetScheduled(id int64, scheduled bool) error {
	return r.db.Model(&model.ScrapeJob{}).Where("id = ?", id).
		Update("is_scheduled", scheduled).Error
}
