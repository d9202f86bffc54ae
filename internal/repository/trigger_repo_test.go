package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/testutil"
)

func TestTriggerRepository_Upsert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTriggerRepository(db)
	job := testutil.TestJob(t, db)

	trigger := &model.CronTrigger{
		TriggerID: model.TriggerIDForJob(job.ID),
		JobID:     job.ID,
		CronExpr:  "0 * * * *",
	}
	require.NoError(t, repo.Upsert(trigger))

	found, err := repo.GetByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", found.CronExpr)

	// 同键再次写入应替换表达式而非新增行
	trigger.CronExpr = "*/10 * * * *"
	require.NoError(t, repo.Upsert(trigger))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err = repo.GetByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "*/10 * * * *", found.CronExpr)
}

func TestTriggerRepository_TriggerIDNaming(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTriggerRepository(db)
	job := testutil.TestJob(t, db)
	testutil.TestTrigger(t, db, job.ID, "0 * * * *")

	found, err := repo.GetByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerIDForJob(job.ID), found.TriggerID)
}

func TestTriggerRepository_DeleteByJobID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTriggerRepository(db)
	job := testutil.TestJob(t, db)
	testutil.TestTrigger(t, db, job.ID, "0 * * * *")

	deleted, err := repo.DeleteByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// 删除不存在的触发器是软失败：无错误、零行
	deleted, err = repo.DeleteByJobID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestTriggerRepository_List(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewTriggerRepository(db)
	job1 := testutil.TestJob(t, db)
	job2 := testutil.TestJob(t, db)
	testutil.TestTrigger(t, db, job1.ID, "0 * * * *")
	testutil.TestTrigger(t, db, job2.ID, "*/5 * * * *")

	triggers, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, triggers, 2)
}
