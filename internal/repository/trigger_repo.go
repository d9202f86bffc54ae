package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/scrape_go_server/internal/model"
)

// TriggerRepository 调度器的持久化触发器存储
type TriggerRepository struct {
	db *gorm.DB
}

func NewTriggerRepository(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// Upsert 写入或替换任务的触发器行
func (r *TriggerRepository) Upsert(trigger *model.CronTrigger) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trigger_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "cron_expr", "updated_at"}),
	}).Create(trigger).Error
}

func (r *TriggerRepository) GetByJobID(jobID int64) (*model.CronTrigger, error) {
	var trigger model.CronTrigger
	err := r.db.Where("job_id = ?", jobID).First(&trigger).Error
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (r *TriggerRepository) DeleteByJobID(jobID int64) (int64, error) {
	result := r.db.Where("job_id = ?", jobID).Delete(&model.CronTrigger{})
	return result.RowsAffected, result.Error
}

func (r *TriggerRepository) List() ([]*model.CronTrigger, error) {
	var triggers []*model.CronTrigger
	err := r.db.Order("job_id ASC").Find(&triggers).Error
	return triggers, err
}

func (r *TriggerRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.CronTrigger{}).Count(&count).Error
	return count, err
}
