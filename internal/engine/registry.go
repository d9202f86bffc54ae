package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qs3c/scrape_go_server/internal/crawler"
)

// runEntry 一次在途执行的句柄
type runEntry struct {
	cancel    context.CancelFunc
	crawler   crawler.Crawler
	historyID int64
	startedAt time.Time
}

// registry 在途执行注册表。同一任务最多一条在途记录，
// tryAdd 的检查和插入在同一把锁内完成。
type registry struct {
	mu      sync.Mutex
	running map[int64]*runEntry
}

func newRegistry() *registry {
	return &registry{running: make(map[int64]*runEntry)}
}

// tryAdd 原子地登记一次执行，任务已在途时返回 false
func (r *registry) tryAdd(jobID int64, entry *runEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.running[jobID]; exists {
		return false
	}
	r.running[jobID] = entry
	return true
}

func (r *registry) remove(jobID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, jobID)
}

func (r *registry) get(jobID int64) (*runEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.running[jobID]
	return entry, ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func (r *registry) jobIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
