package service

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/model/dto"
	"github.com/qs3c/scrape_go_server/internal/pkg/cronutil"
	"github.com/qs3c/scrape_go_server/internal/repository"
	"github.com/qs3c/scrape_go_server/internal/scheduler"
)

var (
	ErrJobNotFound  = errors.New("任务不存在")
	ErrCronRequired = errors.New("自动任务必须提供 cron 表达式")
	ErrJobRunning   = errors.New("任务正在运行，无法删除")
)

// runChecker 删除前探测任务是否在途
type runChecker interface {
	IsRunning(jobID int64) bool
}

type JobService struct {
	jobRepo     *repository.JobRepository
	historyRepo *repository.HistoryRepository
	scheduler   *scheduler.Scheduler
	runs        runChecker
}

func NewJobService(
	jobRepo *repository.JobRepository,
	historyRepo *repository.HistoryRepository,
	sched *scheduler.Scheduler,
	runs runChecker,
) *JobService {
	return &JobService{
		jobRepo:     jobRepo,
		historyRepo: historyRepo,
		scheduler:   sched,
		runs:        runs,
	}
}

// Create 创建任务。自动任务必须带合法的 cron 表达式，
// 创建成功后立即登记触发器。
func (s *JobService) Create(req *dto.CreateJobRequest) (*model.ScrapeJob, error) {
	job := &model.ScrapeJob{
		CrawlerRef: req.CrawlerRef,
		Name:       req.Name,
		IsAuto:     req.IsAuto,
		IsActive:   true,
		CronExpr:   req.CronExpr,
		Notes:      req.Notes,
		Phase:      model.PhaseInit,
		Status:     model.StatusInit,
	}
	// 请求里的参数经 JSON 解码已带齐缺省值，直接覆盖即可；
	// 再走 FillDefaults 会把显式的 max_retries=0 等零值冲掉
	job.Args = model.DefaultArgs()
	if req.Args != nil {
		job.Args = *req.Args
	}
	if err := job.Args.Validate(); err != nil {
		return nil, err
	}

	if err := s.validateCron(job); err != nil {
		return nil, err
	}

	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	if err := s.syncTrigger(job); err != nil {
		log.Printf("Job %d: failed to sync trigger after create: %v", job.ID, err)
	}

	return job, nil
}

// Get 按 ID 查询任务
func (s *JobService) Get(jobID int64) (*model.ScrapeJob, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Update 部分更新任务。crawler_ref 与 created_at 不可更新，
// 调度相关字段变化后同步触发器。
func (s *JobService) Update(jobID int64, req *dto.UpdateJobRequest) (*model.ScrapeJob, error) {
	job, err := s.Get(jobID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		job.Name = *req.Name
	}
	if req.IsAuto != nil {
		job.IsAuto = *req.IsAuto
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}
	if req.CronExpr != nil {
		job.CronExpr = req.CronExpr
	}
	if req.Args != nil {
		if err := req.Args.Validate(); err != nil {
			return nil, err
		}
		job.Args = *req.Args
	}
	if req.Notes != nil {
		job.Notes = *req.Notes
	}

	if err := s.validateCron(job); err != nil {
		return nil, err
	}

	if err := s.jobRepo.Update(job); err != nil {
		return nil, err
	}

	if err := s.syncTrigger(job); err != nil {
		log.Printf("Job %d: failed to sync trigger after update: %v", job.ID, err)
	}

	return job, nil
}

// Delete 删除任务及其触发器。在途任务不可删除。
func (s *JobService) Delete(jobID int64) error {
	if _, err := s.Get(jobID); err != nil {
		return err
	}
	if s.runs != nil && s.runs.IsRunning(jobID) {
		return ErrJobRunning
	}

	if _, err := s.scheduler.Remove(jobID); err != nil {
		return err
	}
	return s.jobRepo.Delete(jobID)
}

// Search 谓词搜索
func (s *JobService) Search(req *dto.SearchJobsRequest) ([]*model.ScrapeJob, int64, error) {
	filter := repository.JobFilter{
		NameLike:      req.NameLike,
		CrawlerRef:    req.CrawlerRef,
		IsAuto:        req.IsAuto,
		IsActive:      req.IsActive,
		IsScheduled:   req.IsScheduled,
		AIOnly:        req.AIOnly,
		MaxPages:      req.MaxPages,
		ScrapeMode:    req.ScrapeMode,
		SaveToCSV:     req.SaveToCSV,
		RetryCountMin: req.RetryCountMin,
		RetryCountMax: req.RetryCountMax,
		LastRunFrom:   req.LastRunFrom,
		LastRunTo:     req.LastRunTo,
		HasNotes:      req.HasNotes,
	}

	if req.Status != "" {
		status, err := model.ParseStatus(req.Status)
		if err != nil {
			return nil, 0, err
		}
		filter.Status = &status
	}
	if req.Phase != "" {
		phase, err := model.ParsePhase(req.Phase)
		if err != nil {
			return nil, 0, err
		}
		filter.Phase = &phase
	}

	sort := repository.JobSort{Field: req.SortBy, Desc: req.SortOrder != "asc"}
	page := repository.Page{Page: req.Page, PageSize: req.PageSize}

	return s.jobRepo.Search(filter, sort, page)
}

// ListHistories 任务的执行历史，按开始时间倒序分页
func (s *JobService) ListHistories(jobID int64, page, pageSize int) ([]dto.HistoryListItem, int64, error) {
	if _, err := s.Get(jobID); err != nil {
		return nil, 0, err
	}

	histories, total, err := s.historyRepo.ListByJobID(jobID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]dto.HistoryListItem, 0, len(histories))
	for _, h := range histories {
		item := dto.HistoryListItem{
			ID:             h.ID,
			JobID:          h.JobID,
			StartTime:      h.StartTime.Format(time.RFC3339),
			Success:        h.Success,
			Message:        h.Message,
			ItemsCollected: h.ItemsCollected,
			Status:         string(h.Status),
		}
		if h.EndTime != nil {
			item.EndTime = h.EndTime.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, total, nil
}

// validateCron 自动任务必须带合法表达式
func (s *JobService) validateCron(job *model.ScrapeJob) error {
	if !job.IsAuto {
		return nil
	}
	expr := job.CronExprValue()
	if expr == "" {
		return ErrCronRequired
	}
	return cronutil.Validate(expr)
}

// syncTrigger 让触发器与任务的调度意愿保持一致
func (s *JobService) syncTrigger(job *model.ScrapeJob) error {
	if job.IsAuto && job.IsActive {
		return s.scheduler.AddOrUpdate(job.ID, job.CronExprValue())
	}
	_, err := s.scheduler.Remove(job.ID)
	return err
}
