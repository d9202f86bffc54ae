package cronutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 * * * *"))
	assert.NoError(t, Validate("*/5 * * * *"))
	assert.Error(t, Validate("not a cron"))
	assert.Error(t, Validate("99 * * * *"))
}

func TestPrevFireTime_Hourly(t *testing.T) {
	// 每小时整点触发，10:30 的上一触发时刻是 10:00
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	prev, err := PrevFireTime("0 * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), prev)
}

func TestPrevFireTime_OnTheSlot(t *testing.T) {
	// 恰好落在触发时刻，上一触发时刻即当前时刻
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	prev, err := PrevFireTime("0 * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, now, prev)
}

func TestPrevFireTime_EveryFiveMinutes(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 7, 30, 0, time.UTC)

	prev, err := PrevFireTime("*/5 * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC), prev)
}

func TestPrevFireTime_InvalidExpr(t *testing.T) {
	_, err := PrevFireTime("bad expr", time.Now())
	assert.Error(t, err)
}

func TestIsDue_NeverRan(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	due, err := IsDue("0 * * * *", nil, now)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_RanBeforeWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	prev, err := PrevFireTime("0 * * * *", now)
	require.NoError(t, err)

	// 上次运行早于本窗口一瞬间，应当到期
	last := prev.Add(-time.Second)
	due, err := IsDue("0 * * * *", &last, now)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_RanExactlyAtSlot(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	prev, err := PrevFireTime("0 * * * *", now)
	require.NoError(t, err)

	// 上次运行恰好等于窗口时刻，视为已执行，不到期
	due, err := IsDue("0 * * * *", &prev, now)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestIsDue_RanInsideWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	last := time.Date(2025, 3, 1, 10, 10, 0, 0, time.UTC)
	due, err := IsDue("0 * * * *", &last, now)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestIsDue_RunThenCheckAgain(t *testing.T) {
	// 场景：从未运行 -> 到期；以窗口时刻记录运行后，同一 now 再查不到期
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	due, err := IsDue("0 * * * *", nil, now)
	require.NoError(t, err)
	assert.True(t, due)

	prev, err := PrevFireTime("0 * * * *", now)
	require.NoError(t, err)

	due, err = IsDue("0 * * * *", &prev, now)
	require.NoError(t, err)
	assert.False(t, due)
}
