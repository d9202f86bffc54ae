package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/scrape_go_server/internal/crawler"
	"github.com/qs3c/scrape_go_server/internal/engine"
	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/model/dto"
	"github.com/qs3c/scrape_go_server/internal/pkg/response"
	"github.com/qs3c/scrape_go_server/internal/repository"
	"github.com/qs3c/scrape_go_server/internal/scheduler"
	"github.com/qs3c/scrape_go_server/internal/service"
	"github.com/qs3c/scrape_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// okCrawler 立即成功的测试爬虫
type okCrawler struct{}

func (okCrawler) Execute(ctx context.Context, jobID int64, args model.JobArgs) (crawler.Result, error) {
	return crawler.Result{Success: true, Message: "收集 2 篇文章", ItemCount: 2}, nil
}

func (okCrawler) Cancel(jobID int64) bool { return false }

// testContext 本地测试上下文
type testContext struct {
	DB *gorm.DB
}

func setupJobHandler(t *testing.T) (*JobHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	jobRepo := repository.NewJobRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	triggerRepo := repository.NewTriggerRepository(db)

	registry := crawler.NewRegistry()
	registry.Register("generic", func() crawler.Crawler { return okCrawler{} })

	eng := engine.New(jobRepo, historyRepo, registry, nil, 2)
	sched := scheduler.New(jobRepo, triggerRepo, eng)
	jobService := service.NewJobService(jobRepo, historyRepo, sched, eng)

	handler := NewJobHandler(jobService, eng)

	ctx := &testContext{DB: db}
	cleanup := func() {
		eng.Shutdown()
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func jobRouter(h *JobHandler) *gin.Engine {
	router := gin.New()
	jobs := router.Group("/jobs")
	{
		jobs.POST("", h.Create)
		jobs.POST("/search", h.Search)
		jobs.GET("/:id", h.Get)
		jobs.PUT("/:id", h.Update)
		jobs.DELETE("/:id", h.Delete)
		jobs.POST("/:id/run", h.Run)
		jobs.POST("/:id/cancel", h.Cancel)
		jobs.GET("/:id/status", h.Status)
		jobs.POST("/:id/retry", h.Retry)
		jobs.POST("/:id/retry/reset", h.ResetRetry)
		jobs.GET("/:id/histories", h.Histories)
	}
	return router
}

func TestJobHandler_Create_Success(t *testing.T) {
	handler, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := jobRouter(handler)

	req := dto.CreateJobRequest{
		CrawlerRef: "generic",
		Name:       "AI 新闻抓取",
	}

	w := performRequest(router, "POST", "/jobs", req)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotZero(t, data["id"])
	assert.Equal(t, "generic", data["crawler_ref"])
}

func TestJobHandler_Create_AutoWithoutCron(t *testing.T) {
	handler, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := jobRouter(handler)

	req := dto.CreateJobRequest{
		CrawlerRef: "generic",
		Name:       "缺表达式",
		IsAuto:     true,
	}

	w := performRequest(router, "POST", "/jobs", req)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_Get_NotFound(t *testing.T) {
	handler, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := jobRouter(handler)

	w := performRequest(router, "GET", "/jobs/99999", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Get_InvalidID(t *testing.T) {
	handler, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := jobRouter(handler)

	w := performRequest(router, "GET", "/jobs/abc", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_Update(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	router := jobRouter(handler)

	name := "改名后"
	w := performRequest(router, "PUT", fmt.Sprintf("/jobs/%d", job.ID), dto.UpdateJobRequest{Name: &name})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "改名后", data["name"])
}

func TestJobHandler_Delete(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	router := jobRouter(handler)

	w := performRequest(router, "DELETE", fmt.Sprintf("/jobs/%d", job.ID), nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	w = performRequest(router, "GET", fmt.Sprintf("/jobs/%d", job.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Search(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	testutil.TestJob(t, ctx.DB)
	testutil.TestJob(t, ctx.DB, testutil.WithCron("0 * * * *"))

	router := jobRouter(handler)

	yes := true
	w := performRequest(router, "POST", "/jobs/search", dto.SearchJobsRequest{IsAuto: &yes})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["total"])
}

func TestJobHandler_Run_Sync(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	router := jobRouter(handler)

	w := performRequest(router, "POST", fmt.Sprintf("/jobs/%d/run", job.ID), dto.RunJobRequest{Async: false})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(model.StatusCompleted), data["status"])
	assert.NotZero(t, data["history_id"])
}

func TestJobHandler_Run_NotFound(t *testing.T) {
	handler, _, cleanup := setupJobHandler(t)
	defer cleanup()

	router := jobRouter(handler)

	w := performRequest(router, "POST", "/jobs/99999/run", dto.RunJobRequest{})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Cancel_NotRunning(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	router := jobRouter(handler)

	w := performRequest(router, "POST", fmt.Sprintf("/jobs/%d/cancel", job.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeTaskNotRunning, resp.Code)
}

func TestJobHandler_Status(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	router := jobRouter(handler)

	// 先跑一次
	w := performRequest(router, "POST", fmt.Sprintf("/jobs/%d/run", job.ID), dto.RunJobRequest{})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	w = performRequest(router, "GET", fmt.Sprintf("/jobs/%d/status", job.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(model.StatusCompleted), data["status"])
	assert.Equal(t, float64(100), data["progress"])
	assert.Equal(t, float64(2), data["items_collected"])
}

func TestJobHandler_Retry(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	args := model.DefaultArgs()
	args.MaxRetries = 1
	job := testutil.TestJob(t, ctx.DB, testutil.WithArgs(args))
	router := jobRouter(handler)

	w := performRequest(router, "POST", fmt.Sprintf("/jobs/%d/retry", job.ID), nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["retry_count"])
	assert.Equal(t, true, data["exceeded"])

	// 预算耗尽
	w = performRequest(router, "POST", fmt.Sprintf("/jobs/%d/retry", job.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeRetryExhausted, resp.Code)

	// 重置后恢复
	w = performRequest(router, "POST", fmt.Sprintf("/jobs/%d/retry/reset", job.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	w = performRequest(router, "POST", fmt.Sprintf("/jobs/%d/retry", job.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestJobHandler_Histories(t *testing.T) {
	handler, ctx, cleanup := setupJobHandler(t)
	defer cleanup()

	job := testutil.TestJob(t, ctx.DB)
	testutil.TestHistory(t, ctx.DB, job.ID, model.StatusCompleted)
	testutil.TestHistory(t, ctx.DB, job.ID, model.StatusFailed)

	router := jobRouter(handler)

	w := performRequest(router, "GET", fmt.Sprintf("/jobs/%d/histories", job.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total"])

	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}
