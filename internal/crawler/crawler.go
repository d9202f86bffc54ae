package crawler

import (
	"context"
	"errors"
	"sync"

	"github.com/qs3c/scrape_go_server/internal/model"
)

// ErrCrawlerNotFound 未注册的爬虫
var ErrCrawlerNotFound = errors.New("爬虫不存在")

// Result 单次执行结果
type Result struct {
	Success   bool
	Message   string
	ItemCount int
}

// Crawler 站点爬虫能力。Execute 阻塞直到抓取完成或被取消；
// Cancel 负责让阻塞中的网络调用尽快返回（在重试/翻页间隙生效），
// 并按任务参数决定是否落盘已抓到的部分结果。
type Crawler interface {
	Execute(ctx context.Context, jobID int64, args model.JobArgs) (Result, error)
	Cancel(jobID int64) bool
}

// Factory 按任务创建爬虫实例。每次执行使用独立实例，
// 取消信号只影响绑定的那一次运行。
type Factory func() Crawler

// Registry crawler_ref -> 工厂 的注册表
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register 注册爬虫实现，重复注册覆盖旧值
func (r *Registry) Register(ref string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ref] = factory
}

// Resolve 按 crawler_ref 创建实例
func (r *Registry) Resolve(ref string) (Crawler, error) {
	r.mu.RLock()
	factory, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrCrawlerNotFound
	}
	return factory(), nil
}

// Refs 已注册的 crawler_ref 列表
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.factories))
	for ref := range r.factories {
		refs = append(refs, ref)
	}
	return refs
}
