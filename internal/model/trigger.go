package model

import (
	"fmt"
	"time"
)

// CronTrigger 调度器的持久化触发器，进程重启后恢复调度。
// trigger_id 固定为 "job_{id}"，与既有触发器表兼容。
type CronTrigger struct {
	TriggerID string    `gorm:"primaryKey;size:64" json:"trigger_id"`
	JobID     int64     `gorm:"not null;uniqueIndex" json:"job_id"`
	CronExpr  string    `gorm:"size:100;not null" json:"cron_expr"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CronTrigger) TableName() string {
	return "cron_triggers"
}

// TriggerIDForJob 由任务 ID 生成触发器键
func TriggerIDForJob(jobID int64) string {
	return fmt.Sprintf("job_%d", jobID)
}
