package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/scrape_go_server/internal/pkg/response"
	"github.com/qs3c/scrape_go_server/internal/scheduler"
)

type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: sched}
}

// Start 启动调度器
// POST /api/v1/scheduler/start
func (h *SchedulerHandler) Start(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			response.DuplicateError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.SuccessWithMessage(c, "调度器已启动", nil)
}

// Stop 停止调度器
// POST /api/v1/scheduler/stop
func (h *SchedulerHandler) Stop(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			response.DuplicateError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.SuccessWithMessage(c, "调度器已停止", nil)
}

// Reload 以持久化触发器为准重建运行时
// POST /api/v1/scheduler/reload
func (h *SchedulerHandler) Reload(c *gin.Context) {
	registered, pruned, err := h.scheduler.Reload()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"registered": registered, "pruned": pruned})
}

// Status 调度器状态
// GET /api/v1/scheduler/status
func (h *SchedulerHandler) Status(c *gin.Context) {
	status, err := h.scheduler.Status()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, status)
}

// Triggers 持久化触发器列表
// GET /api/v1/scheduler/triggers
func (h *SchedulerHandler) Triggers(c *gin.Context) {
	items, err := h.scheduler.ListTriggers()
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, items)
}

// RunDue 立即执行所有到期任务
// POST /api/v1/scheduler/run-due
func (h *SchedulerHandler) RunDue(c *gin.Context) {
	submitted, err := h.scheduler.RunDue(time.Now())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"submitted": submitted})
}
