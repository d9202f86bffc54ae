package dto

// SchedulerStatusResponse 调度器状态
type SchedulerStatusResponse struct {
	Running           bool `json:"running"`
	RegisteredEntries int  `json:"registered_entries"`
	PersistedTriggers int  `json:"persisted_triggers"`
}

// TriggerItem 持久化触发器列表项
type TriggerItem struct {
	TriggerID string `json:"trigger_id"`
	JobID     int64  `json:"job_id"`
	CronExpr  string `json:"cron_expr"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
