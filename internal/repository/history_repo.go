package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/model"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(history *model.ScrapeHistory) error {
	return r.db.Create(history).Error
}

// StartRun 在一个事务里创建运行中的历史行并把任务标记为运行中。
// 任务行更新失败时历史行一并回滚，不会留下永远 running 的孤儿行。
func (r *HistoryRepository) StartRun(history *model.ScrapeHistory, jobFields map[string]interface{}) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		return tx.Model(&model.ScrapeJob{}).Where("id = ?", history.JobID).Updates(jobFields).Error
	})
}

func (r *HistoryRepository) GetByID(id int64) (*model.ScrapeHistory, error) {
	var history model.ScrapeHistory
	err := r.db.Where("id = ?", id).First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// UpdateFields 更新执行记录。同一行从创建到结束只更新、不替换。
func (r *HistoryRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.ScrapeHistory{}).Where("id = ?", id).Updates(fields).Error
}

// GetLatestByJobID 任务最近一次执行记录。
// start_time 相同（秒级精度下可能出现）时按插入顺序取最新。
func (r *HistoryRepository) GetLatestByJobID(jobID int64) (*model.ScrapeHistory, error) {
	var history model.ScrapeHistory
	err := r.db.Where("job_id = ?", jobID).
		Order("start_time DESC, id DESC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// ListByJobID 任务执行历史，按 start_time 倒序分页
func (r *HistoryRepository) ListByJobID(jobID int64, page, pageSize int) ([]*model.ScrapeHistory, int64, error) {
	var histories []*model.ScrapeHistory
	var total int64

	query := r.db.Model(&model.ScrapeHistory{}).Where("job_id = ?", jobID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	if err := query.Order("start_time DESC, id DESC").Offset(offset).Limit(pageSize).Find(&histories).Error; err != nil {
		return nil, 0, err
	}

	return histories, total, nil
}

// DeleteOlderThan 删除指定时点之前已终结的执行记录，返回删除行数
func (r *HistoryRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("end_time IS NOT NULL AND start_time < ?", cutoff).
		Delete(&model.ScrapeHistory{})
	return result.RowsAffected, result.Error
}
