package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/pkg/cronutil"
	"github.com/qs3c/scrape_go_server/internal/testutil"
)

func TestJobRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	job := &model.ScrapeJob{
		CrawlerRef: "generic",
		Name:       "科技新闻",
		IsActive:   true,
		Args:       model.DefaultArgs(),
		Phase:      model.PhaseInit,
		Status:     model.StatusInit,
	}

	err := repo.Create(job)
	require.NoError(t, err)
	assert.NotZero(t, job.ID)

	// 参数整值存取，读回与写入一致
	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFull, found.Args.ScrapeMode)
	assert.Equal(t, 5, found.Args.MaxPages)
	assert.Equal(t, 3, found.Args.MaxRetries)
	assert.True(t, found.Args.SaveToDB)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	_, err := repo.GetByID(99999)
	assert.Error(t, err)
}

func TestJobRepository_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db)

	job.Name = "改名后的任务"
	job.Notes = "人工确认过"
	err := repo.Update(job)
	require.NoError(t, err)

	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "改名后的任务", found.Name)
	assert.Equal(t, "人工确认过", found.Notes)
}

func TestJobRepository_Update_ImmutableCrawlerRef(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db)

	job.CrawlerRef = "another"
	err := repo.Update(job)
	assert.ErrorIs(t, err, ErrImmutableField)

	// 原值不受影响
	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "generic", found.CrawlerRef)
}

func TestJobRepository_UpdateFields_RejectsImmutable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db)

	err := repo.UpdateFields(job.ID, map[string]interface{}{"crawler_ref": "other"})
	assert.ErrorIs(t, err, ErrImmutableField)

	err = repo.UpdateFields(job.ID, map[string]interface{}{"created_at": time.Now()})
	assert.ErrorIs(t, err, ErrImmutableField)
}

func TestJobRepository_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db)

	err := repo.Delete(job.ID)
	require.NoError(t, err)

	_, err = repo.GetByID(job.ID)
	assert.Error(t, err)
}

func TestJobRepository_ListAutoActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	auto := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))
	testutil.TestJob(t, db) // 非自动
	inactive := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))
	require.NoError(t, repo.UpdateFields(inactive.ID, map[string]interface{}{"is_active": false}))

	jobs, err := repo.ListAutoActive()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, auto.ID, jobs[0].ID)
}

func TestJobRepository_FindByCron(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	hourly := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))
	testutil.TestJob(t, db, testutil.WithCron("*/5 * * * *"))

	jobs, err := repo.FindByCron("0 * * * *")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, hourly.ID, jobs[0].ID)
}

func TestJobRepository_FindDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	// 从未运行过，到期
	never := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))

	// 恰好在窗口时刻运行过，不到期
	prev, err := cronutil.PrevFireTime("0 * * * *", now)
	require.NoError(t, err)
	ran := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))
	require.NoError(t, repo.UpdateFields(ran.ID, map[string]interface{}{"last_run_at": prev}))

	// 窗口之前运行过，到期
	stale := testutil.TestJob(t, db, testutil.WithCron("0 * * * *"))
	earlier := prev.Add(-time.Second)
	require.NoError(t, repo.UpdateFields(stale.ID, map[string]interface{}{"last_run_at": earlier}))

	due, err := repo.FindDue("0 * * * *", now)
	require.NoError(t, err)

	ids := make([]int64, 0, len(due))
	for _, j := range due {
		ids = append(ids, j.ID)
	}
	assert.ElementsMatch(t, []int64{never.ID, stale.ID}, ids)
}

func TestJobRepository_SetScheduled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	job := testutil.TestJob(t, db)

	require.NoError(t, repo.SetScheduled(job.ID, true))
	found, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.True(t, found.IsScheduled)

	require.NoError(t, repo.SetScheduled(job.ID, false))
	found, err = repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.False(t, found.IsScheduled)
}
