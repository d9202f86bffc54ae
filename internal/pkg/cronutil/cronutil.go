package cronutil

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// 标准五段 cron（分 时 日 月 周），与调度器使用同一解析器
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse 解析 cron 表达式。表达式非法属于配置错误，调用方不应重试。
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("无效的 cron 表达式 %q: %w", expr, err)
	}
	return sched, nil
}

// Validate 仅校验表达式是否合法
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// PrevFireTime 计算 now 之前（含 now）最近的一次调度时刻。
// robfig/cron 只提供 Next，这里用相邻两次触发的间隔回推：
// prev = Next(now) - (Next(Next(now)+1s) - Next(now))，
// 若回推结果仍晚于 now 则再退一个间隔。
func PrevFireTime(expr string, now time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	nextNext := sched.Next(next.Add(time.Second))
	interval := nextNext.Sub(next)
	prev := next.Add(-interval)
	for prev.After(now) {
		prev = prev.Add(-interval)
	}
	return prev, nil
}

// IsDue 判断任务是否到期：lastRunAt 为空，或早于当前窗口的调度时刻。
// lastRunAt 恰好等于上一调度时刻视为该窗口已执行过，不到期，
// 避免同一窗口内重复判定导致的双触发。
func IsDue(expr string, lastRunAt *time.Time, now time.Time) (bool, error) {
	prev, err := PrevFireTime(expr, now)
	if err != nil {
		return false, err
	}
	if lastRunAt == nil {
		return true, nil
	}
	return lastRunAt.Before(prev), nil
}
