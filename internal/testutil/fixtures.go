package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/model"
)

var fixtureSeq int64

// TestJob 创建测试任务，opts 可修改默认字段
func TestJob(t *testing.T, db *gorm.DB, opts ...func(*model.ScrapeJob)) *model.ScrapeJob {
	t.Helper()

	fixtureSeq++
	job := &model.ScrapeJob{
		CrawlerRef: "generic",
		Name:       fmt.Sprintf("testjob_%d", fixtureSeq),
		IsAuto:     false,
		IsActive:   true,
		Args:       model.DefaultArgs(),
		Phase:      model.PhaseInit,
		Status:     model.StatusInit,
	}
	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}
	return job
}

// WithCron 设置 cron 表达式并开启自动调度
func WithCron(expr string) func(*model.ScrapeJob) {
	return func(j *model.ScrapeJob) {
		j.IsAuto = true
		j.CronExpr = &expr
	}
}

// WithArgs 替换任务参数
func WithArgs(args model.JobArgs) func(*model.ScrapeJob) {
	return func(j *model.ScrapeJob) {
		args.FillDefaults()
		j.Args = args
	}
}

// TestHistory 创建运行中的执行记录
func TestHistory(t *testing.T, db *gorm.DB, jobID int64, status model.TaskStatus) *model.ScrapeHistory {
	t.Helper()

	history := &model.ScrapeHistory{
		JobID:     jobID,
		StartTime: time.Now(),
		Status:    status,
	}
	if status.Terminal() {
		now := time.Now()
		success := status == model.StatusCompleted
		history.EndTime = &now
		history.Success = &success
	}

	if err := db.Create(history).Error; err != nil {
		t.Fatalf("Failed to create test history: %v", err)
	}
	return history
}

// TestTrigger 创建持久化触发器行
func TestTrigger(t *testing.T, db *gorm.DB, jobID int64, expr string) *model.CronTrigger {
	t.Helper()

	trigger := &model.CronTrigger{
		TriggerID: model.TriggerIDForJob(jobID),
		JobID:     jobID,
		CronExpr:  expr,
	}
	if err := db.Create(trigger).Error; err != nil {
		t.Fatalf("Failed to create test trigger: %v", err)
	}
	return trigger
}
