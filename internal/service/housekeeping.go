package service

import (
	"log"
	"time"

	"github.com/qs3c/scrape_go_server/internal/repository"
)

const defaultHistoryRetentionDays = 30

// Housekeeper 进程内定时清理已结束的过期执行历史。
// cmd/cleanup 做的是同一件事，这里是常驻版本。
type Housekeeper struct {
	historyRepo *repository.HistoryRepository
	retention   time.Duration
	interval    time.Duration
	stop        chan struct{}
	done        chan struct{}
}

func NewHousekeeper(historyRepo *repository.HistoryRepository, retentionDays int) *Housekeeper {
	if retentionDays <= 0 {
		retentionDays = defaultHistoryRetentionDays
	}
	return &Housekeeper{
		historyRepo: historyRepo,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		interval:    time.Hour,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start 启动后台清理循环，启动时先跑一轮
func (h *Housekeeper) Start() {
	go func() {
		defer close(h.done)

		h.RunOnce()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.RunOnce()
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop 停止清理循环并等待退出
func (h *Housekeeper) Stop() {
	close(h.stop)
	<-h.done
}

// RunOnce 清理一轮，返回删除的历史行数
func (h *Housekeeper) RunOnce() int64 {
	cutoff := time.Now().Add(-h.retention)
	rows, err := h.historyRepo.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("Housekeeping: failed to prune histories: %v", err)
		return 0
	}
	if rows > 0 {
		log.Printf("Housekeeping: pruned %d concluded histories older than %s", rows, cutoff.Format(time.RFC3339))
	}
	return rows
}
