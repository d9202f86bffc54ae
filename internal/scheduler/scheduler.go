package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/engine"
	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/model/dto"
	"github.com/qs3c/scrape_go_server/internal/pkg/cronutil"
	"github.com/qs3c/scrape_go_server/internal/repository"
)

var (
	ErrAlreadyRunning = errors.New("调度器已在运行")
	ErrNotRunning     = errors.New("调度器未在运行")
	ErrEmptyCronExpr  = errors.New("cron 表达式不能为空")
)

// Scheduler 基于 cron 的任务调度器。触发器持久化在 cron_triggers 表，
// 重启后由 Start/Reload 恢复到运行时。运行时条目与持久化触发器
// 一一对应，键为 "job_{id}"。
type Scheduler struct {
	cron        *cron.Cron
	jobRepo     *repository.JobRepository
	triggerRepo *repository.TriggerRepository
	engine      *engine.Engine

	mu      sync.Mutex
	running bool
	entries map[string]cron.EntryID
}

func New(jobRepo *repository.JobRepository, triggerRepo *repository.TriggerRepository, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		jobRepo:     jobRepo,
		triggerRepo: triggerRepo,
		engine:      eng,
		entries:     make(map[string]cron.EntryID),
	}
}

// Start 从持久化触发器恢复调度并启动。重复启动返回 ErrAlreadyRunning。
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	registered, pruned, err := s.reloadLocked()
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	log.Printf("Scheduler started, triggers registered: %d, pruned: %d", registered, pruned)
	return nil
}

// Stop 停止调度，不打断在途执行。未启动时返回 ErrNotRunning。
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	s.cron.Stop()
	s.running = false
	log.Printf("Scheduler stopped")
	return nil
}

// AddOrUpdate 为任务登记或更新触发器，先持久化再同步运行时
func (s *Scheduler) AddOrUpdate(jobID int64, expr string) error {
	if expr == "" {
		return ErrEmptyCronExpr
	}
	if err := cronutil.Validate(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trigger := &model.CronTrigger{
		TriggerID: model.TriggerIDForJob(jobID),
		JobID:     jobID,
		CronExpr:  expr,
	}
	if err := s.triggerRepo.Upsert(trigger); err != nil {
		return err
	}

	if err := s.registerLocked(jobID, expr); err != nil {
		return err
	}

	return s.jobRepo.SetScheduled(jobID, true)
}

// Remove 注销任务的触发器。触发器不存在不算错误，返回是否真的移除了。
func (s *Scheduler) Remove(jobID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.triggerRepo.DeleteByJobID(jobID)
	if err != nil {
		return false, err
	}

	s.unregisterLocked(model.TriggerIDForJob(jobID))

	if err := s.jobRepo.SetScheduled(jobID, false); err != nil {
		return false, err
	}
	return removed > 0, nil
}

// Reload 双向对账触发器存储与任务表并重建运行时条目：
// 清理指向失效任务的孤儿触发器，为缺触发器的可调度任务补登记，
// 表达式被改过的触发器以任务行为准刷新。返回注册数与清理数。
func (s *Scheduler) Reload() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

func (s *Scheduler) reloadLocked() (int, int, error) {
	for triggerID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, triggerID)
	}

	triggers, err := s.triggerRepo.List()
	if err != nil {
		return 0, 0, err
	}
	jobs, err := s.jobRepo.ListAutoActive()
	if err != nil {
		return 0, 0, err
	}

	// 任务表是权威，triggers 只是它的投影
	want := make(map[int64]string, len(jobs))
	for _, job := range jobs {
		if expr := job.CronExprValue(); expr != "" {
			want[job.ID] = expr
		}
	}

	registered, pruned := 0, 0
	seen := make(map[int64]struct{}, len(triggers))
	for _, trigger := range triggers {
		expr, ok := want[trigger.JobID]
		if !ok {
			// 任务已删除或不再参与调度
			if _, err := s.triggerRepo.DeleteByJobID(trigger.JobID); err != nil {
				log.Printf("Trigger %s: failed to prune: %v", trigger.TriggerID, err)
				continue
			}
			if err := s.jobRepo.SetScheduled(trigger.JobID, false); err != nil {
				log.Printf("Job %d: failed to clear scheduled flag: %v", trigger.JobID, err)
			}
			pruned++
			continue
		}
		seen[trigger.JobID] = struct{}{}

		if trigger.CronExpr != expr {
			// 任务的表达式被改过，刷新存储的触发器
			if err := s.triggerRepo.Upsert(&model.CronTrigger{
				TriggerID: model.TriggerIDForJob(trigger.JobID),
				JobID:     trigger.JobID,
				CronExpr:  expr,
			}); err != nil {
				log.Printf("Trigger %s: failed to refresh expr: %v", trigger.TriggerID, err)
				continue
			}
		}

		if err := s.registerLocked(trigger.JobID, expr); err != nil {
			log.Printf("Trigger %s: failed to register: %v", trigger.TriggerID, err)
			continue
		}
		if err := s.jobRepo.SetScheduled(trigger.JobID, true); err != nil {
			log.Printf("Job %d: failed to set scheduled flag: %v", trigger.JobID, err)
		}
		registered++
	}

	// 还没有触发器行的可调度任务补登记
	for jobID, expr := range want {
		if _, ok := seen[jobID]; ok {
			continue
		}
		if err := s.triggerRepo.Upsert(&model.CronTrigger{
			TriggerID: model.TriggerIDForJob(jobID),
			JobID:     jobID,
			CronExpr:  expr,
		}); err != nil {
			log.Printf("Job %d: failed to create trigger: %v", jobID, err)
			continue
		}
		if err := s.registerLocked(jobID, expr); err != nil {
			log.Printf("Job %d: failed to register: %v", jobID, err)
			continue
		}
		if err := s.jobRepo.SetScheduled(jobID, true); err != nil {
			log.Printf("Job %d: failed to set scheduled flag: %v", jobID, err)
		}
		registered++
	}

	return registered, pruned, nil
}

func (s *Scheduler) registerLocked(jobID int64, expr string) error {
	triggerID := model.TriggerIDForJob(jobID)
	s.unregisterLocked(triggerID)

	entryID, err := s.cron.AddFunc(expr, func() {
		s.handleFire(jobID)
	})
	if err != nil {
		return err
	}
	s.entries[triggerID] = entryID
	return nil
}

func (s *Scheduler) unregisterLocked(triggerID string) {
	if entryID, ok := s.entries[triggerID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, triggerID)
	}
}

// handleFire 触发器到点回调。任务已不存在时自动注销触发器，
// 已不参与调度的任务跳过本次触发。
func (s *Scheduler) handleFire(jobID int64) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Job %d: gone, removing trigger", jobID)
			if _, err := s.Remove(jobID); err != nil {
				log.Printf("Job %d: failed to remove trigger: %v", jobID, err)
			}
			return
		}
		log.Printf("Job %d: fire aborted: %v", jobID, err)
		return
	}

	if !job.IsAuto || !job.IsActive {
		log.Printf("Job %d: not schedulable, skipping fire", jobID)
		return
	}

	if _, err := s.engine.Execute(jobID, engine.RunOptions{Async: true}); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			log.Printf("Job %d: still running, skipping fire", jobID)
			return
		}
		log.Printf("Job %d: fire failed: %v", jobID, err)
	}
}

// RunDue 立即执行所有到期任务，用于进程启动后的补漏。
// 返回提交执行的任务数。
func (s *Scheduler) RunDue(now time.Time) (int, error) {
	jobs, err := s.jobRepo.ListAutoActive()
	if err != nil {
		return 0, err
	}

	exprs := make(map[string]struct{})
	for _, job := range jobs {
		if expr := job.CronExprValue(); expr != "" {
			exprs[expr] = struct{}{}
		}
	}

	submitted := 0
	for expr := range exprs {
		due, err := s.jobRepo.FindDue(expr, now)
		if err != nil {
			return submitted, err
		}
		for _, job := range due {
			if _, err := s.engine.Execute(job.ID, engine.RunOptions{Async: true}); err != nil {
				if errors.Is(err, engine.ErrAlreadyRunning) {
					continue
				}
				log.Printf("Job %d: due run failed: %v", job.ID, err)
				continue
			}
			submitted++
		}
	}
	return submitted, nil
}

// Status 调度器当前状态
func (s *Scheduler) Status() (*dto.SchedulerStatusResponse, error) {
	s.mu.Lock()
	running := s.running
	registered := len(s.entries)
	s.mu.Unlock()

	persisted, err := s.triggerRepo.Count()
	if err != nil {
		return nil, err
	}

	return &dto.SchedulerStatusResponse{
		Running:           running,
		RegisteredEntries: registered,
		PersistedTriggers: int(persisted),
	}, nil
}

// ListTriggers 列出所有持久化触发器
func (s *Scheduler) ListTriggers() ([]dto.TriggerItem, error) {
	triggers, err := s.triggerRepo.List()
	if err != nil {
		return nil, err
	}

	items := make([]dto.TriggerItem, 0, len(triggers))
	for _, trigger := range triggers {
		items = append(items, dto.TriggerItem{
			TriggerID: trigger.TriggerID,
			JobID:     trigger.JobID,
			CronExpr:  trigger.CronExpr,
			CreatedAt: trigger.CreatedAt.Format(time.RFC3339),
			UpdatedAt: trigger.UpdatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}
