package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/scrape_go_server/config"
	"github.com/qs3c/scrape_go_server/internal/api/handler"
	"github.com/qs3c/scrape_go_server/internal/api/middleware"
)

type Router struct {
	jobHandler       *handler.JobHandler
	schedulerHandler *handler.SchedulerHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	jobHandler *handler.JobHandler,
	schedulerHandler *handler.SchedulerHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		jobHandler:       jobHandler,
		schedulerHandler: schedulerHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket 进度推送
		api.GET("/ws", r.websocketHandler.Handle)

		// 任务
		jobs := api.Group("/jobs")
		{
			jobs.POST("", r.jobHandler.Create)
			jobs.POST("/search", r.jobHandler.Search)
			jobs.GET("/:id", r.jobHandler.Get)
			jobs.PUT("/:id", r.jobHandler.Update)
			jobs.DELETE("/:id", r.jobHandler.Delete)
			jobs.POST("/:id/run", r.jobHandler.Run)
			jobs.POST("/:id/cancel", r.jobHandler.Cancel)
			jobs.GET("/:id/status", r.jobHandler.Status)
			jobs.POST("/:id/retry", r.jobHandler.Retry)
			jobs.POST("/:id/retry/reset", r.jobHandler.ResetRetry)
			jobs.GET("/:id/histories", r.jobHandler.Histories)
		}

		// 调度器管理
		sched := api.Group("/scheduler")
		{
			sched.POST("/start", r.schedulerHandler.Start)
			sched.POST("/stop", r.schedulerHandler.Stop)
			sched.POST("/reload", r.schedulerHandler.Reload)
			sched.POST("/run-due", r.schedulerHandler.RunDue)
			sched.GET("/status", r.schedulerHandler.Status)
			sched.GET("/triggers", r.schedulerHandler.Triggers)
		}
	}

	return engine
}
