package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/crawler"
	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/model/dto"
	"github.com/qs3c/scrape_go_server/internal/pkg/pubsub"
	"github.com/qs3c/scrape_go_server/internal/repository"
)

var (
	ErrJobNotFound      = errors.New("任务不存在")
	ErrAlreadyRunning   = errors.New("任务已在运行中")
	ErrNothingToCancel  = errors.New("没有可取消的运行")
	ErrCancelTimeout    = errors.New("取消等待超时")
	ErrRetriesDisabled  = errors.New("任务未启用重试")
	ErrRetryExhausted   = errors.New("重试次数已用尽")
	ErrRetryAlreadyZero = errors.New("重试计数已为零")
)

// CancelMessage 用户取消时写入任务与历史的固定消息
const CancelMessage = "任务已被用户取消"

// RunOptions 单次执行的触发选项
type RunOptions struct {
	// Async 为 true 时提交到工作池后立即返回
	Async bool
	// Mode 非空时覆盖任务自身的抓取模式，取值 full/links/content
	Mode string
}

// Engine 任务执行引擎。维护在途执行注册表，保证同一任务
// 同一时刻至多一次执行；异步提交经由固定大小的工作池。
type Engine struct {
	jobRepo     *repository.JobRepository
	historyRepo *repository.HistoryRepository
	crawlers    *crawler.Registry
	publisher   *pubsub.Publisher // 可为 nil

	reg   *registry
	tasks chan func()
	wg    sync.WaitGroup
}

func New(jobRepo *repository.JobRepository, historyRepo *repository.HistoryRepository, crawlers *crawler.Registry, publisher *pubsub.Publisher, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	e := &Engine{
		jobRepo:     jobRepo,
		historyRepo: historyRepo,
		crawlers:    crawlers,
		publisher:   publisher,
		reg:         newRegistry(),
		tasks:       make(chan func(), 64),
	}

	for i := 0; i < maxWorkers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		task()
	}
}

// Shutdown 停止接收新任务并等待在途执行收尾
func (e *Engine) Shutdown() {
	close(e.tasks)
	e.wg.Wait()
}

// Execute 触发一次执行。登记、建历史行、标记任务运行中，
// 然后同步跑完或投递到工作池。任务已在途时返回 ErrAlreadyRunning。
func (e *Engine) Execute(jobID int64, opts RunOptions) (*dto.RunJobResponse, error) {
	job, err := e.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	args := job.Args
	if opts.Mode != "" {
		args.ScrapeMode = opts.Mode
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}

	cr, err := e.crawlers.Resolve(job.CrawlerRef)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	entry := &runEntry{cancel: cancel, crawler: cr, startedAt: time.Now()}
	if !e.reg.tryAdd(jobID, entry) {
		cancel()
		return nil, ErrAlreadyRunning
	}

	history := &model.ScrapeHistory{
		JobID:     jobID,
		StartTime: entry.startedAt,
		Status:    model.StatusRunning,
	}
	phase := initialPhase(args.ScrapeMode)
	// 历史行与任务行的起步标记在同一事务里落库，
	// 任一写入失败整体回滚，不留 running 孤儿行
	if err := e.historyRepo.StartRun(history, map[string]interface{}{
		"status":      model.StatusRunning,
		"phase":       phase,
		"last_run_at": entry.startedAt,
	}); err != nil {
		e.reg.remove(jobID)
		cancel()
		return nil, err
	}
	entry.historyID = history.ID

	e.publishProgress(jobID, history.ID, phase, model.StatusRunning, 0, "")

	if opts.Async {
		e.tasks <- func() {
			defer cancel()
			e.run(runCtx, jobID, args, cr, history.ID)
		}
		return &dto.RunJobResponse{
			JobID:     jobID,
			HistoryID: history.ID,
			Submitted: true,
			Status:    string(model.StatusRunning),
		}, nil
	}

	defer cancel()
	status, result := e.run(runCtx, jobID, args, cr, history.ID)
	return &dto.RunJobResponse{
		JobID:     jobID,
		HistoryID: history.ID,
		Submitted: true,
		Status:    string(status),
		Message:   result.Message,
	}, nil
}

// run 执行爬虫并落盘结果。无论结果如何，退出前都会注销在途记录。
func (e *Engine) run(ctx context.Context, jobID int64, args model.JobArgs, cr crawler.Crawler, historyID int64) (model.TaskStatus, crawler.Result) {
	defer e.reg.remove(jobID)

	var result crawler.Result
	err := ctx.Err()
	if err == nil {
		// 排队期间被取消的任务直接按取消收尾，不再调爬虫
		result, err = e.invoke(ctx, jobID, args, cr)
	}

	var status model.TaskStatus
	var phase model.ScrapePhase
	message := result.Message
	switch {
	case err == nil && result.Success:
		status, phase = model.StatusCompleted, model.PhaseCompleted
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		status, phase = model.StatusCancelled, model.PhaseCancelled
		message = CancelMessage
	default:
		status, phase = model.StatusFailed, model.PhaseFailed
		if message == "" && err != nil {
			message = err.Error()
		}
	}
	result.Message = message
	success := status == model.StatusCompleted

	endTime := time.Now()
	if err := e.historyRepo.UpdateFields(historyID, map[string]interface{}{
		"end_time":        endTime,
		"success":         success,
		"message":         message,
		"items_collected": result.ItemCount,
		"status":          status,
	}); err != nil {
		log.Printf("Job %d: failed to conclude history %d: %v", jobID, historyID, err)
	}

	fields := map[string]interface{}{
		"status":           status,
		"phase":            phase,
		"last_run_success": success,
		"last_run_message": message,
	}
	if success {
		fields["retry_count"] = 0
	}
	if err := e.jobRepo.UpdateFields(jobID, fields); err != nil {
		log.Printf("Job %d: failed to update job after run: %v", jobID, err)
	}

	e.publishProgress(jobID, historyID, phase, status, result.ItemCount, message)
	return status, result
}

// invoke 调用爬虫并把 panic 转成普通失败，避免拖垮工作池
func (e *Engine) invoke(ctx context.Context, jobID int64, args model.JobArgs, cr crawler.Crawler) (result crawler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Job %d: crawler panicked: %v", jobID, r)
			err = fmt.Errorf("爬虫执行异常: %v", r)
		}
	}()
	return cr.Execute(ctx, jobID, args)
}

// CollectLinksOnly 只跑链接收集阶段
func (e *Engine) CollectLinksOnly(jobID int64, async bool) (*dto.RunJobResponse, error) {
	return e.Execute(jobID, RunOptions{Async: async, Mode: model.ModeLinks})
}

// FetchContentOnly 只补抓已收集链接的正文
func (e *Engine) FetchContentOnly(jobID int64, async bool) (*dto.RunJobResponse, error) {
	return e.Execute(jobID, RunOptions{Async: async, Mode: model.ModeContent})
}

// FetchFullArticle 链接收集和正文抓取两阶段都执行
func (e *Engine) FetchFullArticle(jobID int64, async bool) (*dto.RunJobResponse, error) {
	return e.Execute(jobID, RunOptions{Async: async, Mode: model.ModeFull})
}

// Cancel 请求取消在途执行。按任务参数的节奏重复下发中断，
// 直到执行退出或等待超时。
func (e *Engine) Cancel(jobID int64) error {
	entry, ok := e.reg.get(jobID)
	if !ok {
		return ErrNothingToCancel
	}

	args := model.DefaultArgs()
	if job, err := e.jobRepo.GetByID(jobID); err == nil {
		args = job.Args
	}
	interval := time.Duration(args.CancelInterruptIntervalSec) * time.Second
	deadline := time.Now().Add(time.Duration(args.MaxCancelWaitSec) * time.Second)

	entry.crawler.Cancel(jobID)
	entry.cancel()

	for time.Now().Before(deadline) {
		if _, still := e.reg.get(jobID); !still {
			return nil
		}
		time.Sleep(interval)
		entry.crawler.Cancel(jobID)
	}

	if _, still := e.reg.get(jobID); still {
		return ErrCancelTimeout
	}
	return nil
}

// GetStatus 查询任务当前状态与最近一次执行的概要
func (e *Engine) GetStatus(jobID int64) (*dto.JobStatusResponse, error) {
	job, err := e.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	resp := &dto.JobStatusResponse{
		JobID:    jobID,
		Status:   string(job.Status),
		Phase:    string(job.Phase),
		Progress: progressFor(job.Phase),
	}
	// 注册表里有在途记录时以内存状态为准
	if _, running := e.reg.get(jobID); running {
		resp.Status = string(model.StatusRunning)
	}

	latest, err := e.historyRepo.GetLatestByJobID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resp, nil
		}
		return nil, err
	}

	resp.Message = latest.Message
	resp.ItemsCollected = latest.ItemsCollected
	resp.StartTime = latest.StartTime.Format(time.RFC3339)
	if latest.EndTime != nil {
		resp.EndTime = latest.EndTime.Format(time.RFC3339)
	}
	return resp, nil
}

// IsRunning 任务是否有在途执行
func (e *Engine) IsRunning(jobID int64) bool {
	_, ok := e.reg.get(jobID)
	return ok
}

// RunningJobs 所有在途任务 ID
func (e *Engine) RunningJobs() []int64 {
	return e.reg.jobIDs()
}

// IncrementRetry 消耗一次重试预算。预算为 0 时重试被禁用，
// 预算耗尽时返回 ErrRetryExhausted，两种失败都不改动计数。
func (e *Engine) IncrementRetry(jobID int64) (*dto.RetryResponse, error) {
	job, err := e.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if job.Args.MaxRetries <= 0 {
		return nil, ErrRetriesDisabled
	}
	if job.RetryCount >= job.Args.MaxRetries {
		return &dto.RetryResponse{
			JobID:      jobID,
			RetryCount: job.RetryCount,
			MaxRetries: job.Args.MaxRetries,
			Exceeded:   true,
		}, ErrRetryExhausted
	}

	newCount := job.RetryCount + 1
	if err := e.jobRepo.UpdateFields(jobID, map[string]interface{}{"retry_count": newCount}); err != nil {
		return nil, err
	}

	return &dto.RetryResponse{
		JobID:      jobID,
		RetryCount: newCount,
		MaxRetries: job.Args.MaxRetries,
		Exceeded:   newCount >= job.Args.MaxRetries,
	}, nil
}

// ResetRetry 重试计数归零，已为零时报重复操作
func (e *Engine) ResetRetry(jobID int64) error {
	job, err := e.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	if job.RetryCount == 0 {
		return ErrRetryAlreadyZero
	}
	return e.jobRepo.UpdateFields(jobID, map[string]interface{}{"retry_count": 0})
}

func (e *Engine) publishProgress(jobID, historyID int64, phase model.ScrapePhase, status model.TaskStatus, itemCount int, message string) {
	if e.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := e.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		JobID:     jobID,
		HistoryID: historyID,
		Phase:     string(phase),
		Status:    string(status),
		Progress:  progressFor(phase),
		ItemCount: itemCount,
		Message:   message,
	})
	if err != nil {
		log.Printf("Job %d: failed to publish progress: %v", jobID, err)
	}
}

func initialPhase(mode string) model.ScrapePhase {
	if mode == model.ModeContent {
		return model.PhaseContentScrape
	}
	return model.PhaseLinkCollection
}

// progressFor 阶段到百分比的粗略映射，仅供前端展示
func progressFor(phase model.ScrapePhase) int {
	switch phase {
	case model.PhaseLinkCollection, model.PhaseContentScrape:
		return 50
	case model.PhaseCompleted, model.PhaseFailed, model.PhaseCancelled:
		return 100
	default:
		return 0
	}
}
