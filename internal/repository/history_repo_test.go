package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/testutil"
)

func TestHistoryRepository_StartRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)
	now := time.Now()

	history := &model.ScrapeHistory{JobID: job.ID, StartTime: now, Status: model.StatusRunning}
	require.NoError(t, repo.StartRun(history, map[string]interface{}{
		"status":      model.StatusRunning,
		"phase":       model.PhaseLinkCollection,
		"last_run_at": now,
	}))
	assert.NotZero(t, history.ID)

	var updated model.ScrapeJob
	require.NoError(t, db.First(&updated, job.ID).Error)
	assert.Equal(t, model.StatusRunning, updated.Status)
	assert.Equal(t, model.PhaseLinkCollection, updated.Phase)
}

func TestHistoryRepository_StartRun_RollsBackOnJobUpdateFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)

	// 任务行更新失败（不存在的列）时历史行必须随事务回滚
	history := &model.ScrapeHistory{JobID: job.ID, StartTime: time.Now(), Status: model.StatusRunning}
	err := repo.StartRun(history, map[string]interface{}{"no_such_column": 1})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&model.ScrapeHistory{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var updated model.ScrapeJob
	require.NoError(t, db.First(&updated, job.ID).Error)
	assert.Equal(t, model.StatusInit, updated.Status)
}

func TestHistoryRepository_CreateAndConclude(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)

	history := &model.ScrapeHistory{
		JobID:     job.ID,
		StartTime: time.Now(),
		Status:    model.StatusRunning,
	}
	require.NoError(t, repo.Create(history))
	assert.NotZero(t, history.ID)

	// 运行中：end_time 为空即未结束
	found, err := repo.GetByID(history.ID)
	require.NoError(t, err)
	assert.Nil(t, found.EndTime)
	assert.Nil(t, found.Success)
	assert.False(t, found.Concluded())

	// 结束时更新同一行
	end := time.Now()
	success := true
	err = repo.UpdateFields(history.ID, map[string]interface{}{
		"end_time":        end,
		"success":         success,
		"message":         "收集完成",
		"items_collected": 17,
		"status":          string(model.StatusCompleted),
	})
	require.NoError(t, err)

	found, err = repo.GetByID(history.ID)
	require.NoError(t, err)
	assert.True(t, found.Concluded())
	require.NotNil(t, found.Success)
	assert.True(t, *found.Success)
	assert.Equal(t, 17, found.ItemsCollected)
	assert.Equal(t, model.StatusCompleted, found.Status)
	assert.Equal(t, history.ID, found.ID) // 同一行，从未替换
}

func TestHistoryRepository_GetLatestByJobID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)

	testutil.TestHistory(t, db, job.ID, model.StatusCompleted)
	latest := testutil.TestHistory(t, db, job.ID, model.StatusRunning)

	found, err := repo.GetLatestByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, found.ID)
}

func TestHistoryRepository_ListByJobID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)
	other := testutil.TestJob(t, db)

	for i := 0; i < 5; i++ {
		testutil.TestHistory(t, db, job.ID, model.StatusCompleted)
	}
	testutil.TestHistory(t, db, other.ID, model.StatusCompleted)

	histories, total, err := repo.ListByJobID(job.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, histories, 3)

	// 默认按开始时间倒序
	for i := 1; i < len(histories); i++ {
		assert.False(t, histories[i].StartTime.After(histories[i-1].StartTime))
	}
}

func TestHistoryRepository_DeleteOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewHistoryRepository(db)
	job := testutil.TestJob(t, db)

	old := testutil.TestHistory(t, db, job.ID, model.StatusCompleted)
	require.NoError(t, db.Model(old).Update("start_time", time.Now().Add(-48*time.Hour)).Error)

	// 运行中的旧记录不应被清理
	running := testutil.TestHistory(t, db, job.ID, model.StatusRunning)
	require.NoError(t, db.Model(running).Update("start_time", time.Now().Add(-48*time.Hour)).Error)

	recent := testutil.TestHistory(t, db, job.ID, model.StatusCompleted)

	deleted, err := repo.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(old.ID)
	assert.Error(t, err)
	_, err = repo.GetByID(running.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(recent.ID)
	assert.NoError(t, err)
}
