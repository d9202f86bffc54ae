package model

import "fmt"

// ScrapePhase 爬取阶段（记录爬虫当前做到哪一步）
type ScrapePhase string

const (
	PhaseInit           ScrapePhase = "init"
	PhaseLinkCollection ScrapePhase = "link_collection"
	PhaseContentScrape  ScrapePhase = "content_scraping"
	PhaseCompleted      ScrapePhase = "completed"
	PhaseFailed         ScrapePhase = "failed"
	PhaseCancelled      ScrapePhase = "cancelled"
	PhaseUnknown        ScrapePhase = "unknown"
)

// TaskStatus 任务执行生命周期状态（与阶段相互独立）
type TaskStatus string

const (
	StatusInit      TaskStatus = "init"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
	StatusUnknown   TaskStatus = "unknown"
)

var validPhases = map[ScrapePhase]struct{}{
	PhaseInit:           {},
	PhaseLinkCollection: {},
	PhaseContentScrape:  {},
	PhaseCompleted:      {},
	PhaseFailed:         {},
	PhaseCancelled:      {},
	PhaseUnknown:        {},
}

var validStatuses = map[TaskStatus]struct{}{
	StatusInit:      {},
	StatusRunning:   {},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusUnknown:   {},
}

// ParsePhase 解析并校验外部传入的阶段字符串
func ParsePhase(s string) (ScrapePhase, error) {
	p := ScrapePhase(s)
	if _, ok := validPhases[p]; !ok {
		return PhaseUnknown, fmt.Errorf("无效的爬取阶段: %q", s)
	}
	return p, nil
}

// ParseStatus 解析并校验外部传入的状态字符串
func ParseStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	if _, ok := validStatuses[st]; !ok {
		return StatusUnknown, fmt.Errorf("无效的任务状态: %q", s)
	}
	return st, nil
}

// Terminal 是否为终态
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal 是否为终态阶段
func (p ScrapePhase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}
