package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/scrape_go_server/internal/crawler"
	"github.com/qs3c/scrape_go_server/internal/engine"
	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/model/dto"
	"github.com/qs3c/scrape_go_server/internal/pkg/response"
	"github.com/qs3c/scrape_go_server/internal/service"
)

type JobHandler struct {
	jobService *service.JobService
	engine     *engine.Engine
}

func NewJobHandler(jobService *service.JobService, eng *engine.Engine) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		engine:     eng,
	}
}

// Create 创建爬取任务
// POST /api/v1/jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.Create(&req)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "创建成功", job)
}

// Get 获取任务详情
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	job, err := h.jobService.Get(jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, job)
}

// Update 更新任务
// PUT /api/v1/jobs/:id
func (h *JobHandler) Update(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.Update(jobID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrCronRequired):
			response.ParamError(c, err.Error())
		default:
			response.ParamError(c, err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "更新成功", job)
}

// Delete 删除任务
// DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.jobService.Delete(jobID); err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrJobRunning):
			response.DuplicateError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

// Search 谓词搜索任务
// POST /api/v1/jobs/search
func (h *JobHandler) Search(c *gin.Context) {
	var req dto.SearchJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	jobs, total, err := h.jobService.Search(&req)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	response.SuccessPage(c, total, req.Page, req.PageSize, jobs)
}

// Run 触发一次执行
// POST /api/v1/jobs/:id/run
func (h *JobHandler) Run(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	var req dto.RunJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.ParamError(c, err.Error())
		return
	}

	var resp *dto.RunJobResponse
	switch req.Mode {
	case model.ModeLinks:
		resp, err = h.engine.CollectLinksOnly(jobID, req.Async)
	case model.ModeContent:
		resp, err = h.engine.FetchContentOnly(jobID, req.Async)
	case model.ModeFull:
		resp, err = h.engine.FetchFullArticle(jobID, req.Async)
	default:
		resp, err = h.engine.Execute(jobID, engine.RunOptions{Async: req.Async, Mode: req.Mode})
	}
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, engine.ErrAlreadyRunning):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, crawler.ErrCrawlerNotFound):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, resp)
}

// Cancel 取消在途执行
// POST /api/v1/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.engine.Cancel(jobID); err != nil {
		switch {
		case errors.Is(err, engine.ErrNothingToCancel):
			response.TaskNotRunningError(c, err.Error())
		case errors.Is(err, engine.ErrCancelTimeout):
			response.ServerError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "取消成功", nil)
}

// Status 查询任务状态
// GET /api/v1/jobs/:id/status
func (h *JobHandler) Status(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	status, err := h.engine.GetStatus(jobID)
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, status)
}

// Retry 消耗一次重试预算
// POST /api/v1/jobs/:id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	resp, err := h.engine.IncrementRetry(jobID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, engine.ErrRetriesDisabled):
			response.ParamError(c, err.Error())
		case errors.Is(err, engine.ErrRetryExhausted):
			response.RetryExhaustedError(c, "")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// ResetRetry 重试计数归零
// POST /api/v1/jobs/:id/retry/reset
func (h *JobHandler) ResetRetry(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	if err := h.engine.ResetRetry(jobID); err != nil {
		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, engine.ErrRetryAlreadyZero):
			response.DuplicateError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "重置成功", nil)
}

// Histories 任务执行历史
// GET /api/v1/jobs/:id/histories
func (h *JobHandler) Histories(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的任务ID")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.jobService.ListHistories(jobID, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
