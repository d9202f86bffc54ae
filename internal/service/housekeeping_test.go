package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/repository"
	"github.com/qs3c/scrape_go_server/internal/testutil"
)

func TestHousekeeper_RunOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	historyRepo := repository.NewHistoryRepository(db)
	job := testutil.TestJob(t, db)

	// 一条过期的已结束历史，一条新的已结束历史，一条在途历史
	old := testutil.TestHistory(t, db, job.ID, model.StatusCompleted)
	oldStart := time.Now().AddDate(0, 0, -60)
	require.NoError(t, db.Model(old).Update("start_time", oldStart).Error)

	testutil.TestHistory(t, db, job.ID, model.StatusFailed)
	running := testutil.TestHistory(t, db, job.ID, model.StatusRunning)
	require.NoError(t, db.Model(running).Update("start_time", oldStart).Error)

	hk := NewHousekeeper(historyRepo, 30)
	deleted := hk.RunOnce()
	assert.Equal(t, int64(1), deleted)

	// 在途历史即使超龄也不能删
	var remaining int64
	require.NoError(t, db.Model(&model.ScrapeHistory{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestHousekeeper_StartStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	hk := NewHousekeeper(repository.NewHistoryRepository(db), 0)

	assert.Equal(t, time.Duration(defaultHistoryRetentionDays)*24*time.Hour, hk.retention)

	hk.Start()
	hk.Stop()
}
