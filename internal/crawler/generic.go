package crawler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/pkg/oss"
	"github.com/qs3c/scrape_go_server/internal/repository"
)

// SiteConfig 通用爬虫的站点配置
type SiteConfig struct {
	Name        string `mapstructure:"name"`
	ListURL     string `mapstructure:"list_url"` // 含 %d 页码占位符
	BaseURL     string `mapstructure:"base_url"`
	LinkPattern string `mapstructure:"link_pattern"` // 文章链接需包含的路径片段
}

// Generic 基于 goquery 的通用文章爬虫。
// 不含站点专属选择器，链接收集与正文提取都走通用启发式。
// 取消是协作式的：在每次翻页/抓文之间检查取消信号。
type Generic struct {
	site        SiteConfig
	articleRepo *repository.ArticleRepository
	exporter    *oss.Exporter
	client      *http.Client

	mu     sync.Mutex
	jobID  int64
	cancel context.CancelFunc
}

// NewGenericFactory 返回指定站点的爬虫工厂
func NewGenericFactory(site SiteConfig, articleRepo *repository.ArticleRepository, exporter *oss.Exporter) Factory {
	return func() Crawler {
		return &Generic{
			site:        site,
			articleRepo: articleRepo,
			exporter:    exporter,
		}
	}
}

// Execute 按参数抓取。mode=links 仅收集链接，mode=content 仅抓正文，
// mode=full 两阶段都执行。
func (c *Generic) Execute(ctx context.Context, jobID int64, args model.JobArgs) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.jobID = jobID
	c.cancel = cancel
	c.mu.Unlock()

	c.client = &http.Client{Timeout: time.Duration(args.TimeoutSec) * time.Second}

	var links []string
	var err error
	if args.ScrapeMode == model.ModeContent {
		links, err = c.storedLinks(jobID, args.ArticleCount)
	} else {
		links, err = c.collectLinks(runCtx, args)
	}
	if err != nil {
		return Result{Success: false, Message: err.Error()}, err
	}

	if args.ScrapeMode == model.ModeLinks {
		return c.finish(jobID, args, c.linkOnlyArticles(jobID, links))
	}

	articles, err := c.fetchContents(runCtx, jobID, links)
	if err != nil {
		// 协作式取消：已抓到的部分按参数落盘后再返回
		if runCtx.Err() != nil && args.SaveToDB && len(articles) > 0 {
			if dbErr := c.articleRepo.CreateBatch(articles); dbErr != nil {
				log.Printf("Job %d: failed to persist partial results: %v", jobID, dbErr)
			}
		}
		return Result{Success: false, Message: err.Error(), ItemCount: len(articles)}, err
	}

	return c.finish(jobID, args, articles)
}

// Cancel 取消当前绑定任务的运行
func (c *Generic) Cancel(jobID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobID != jobID || c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

func (c *Generic) collectLinks(ctx context.Context, args model.JobArgs) ([]string, error) {
	seen := make(map[string]struct{})
	var links []string

	for page := 1; page <= args.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		pageURL := fmt.Sprintf(c.site.ListURL, page)
		doc, err := c.fetchDocument(ctx, pageURL)
		if err != nil {
			return links, fmt.Errorf("列表页抓取失败 %s: %w", pageURL, err)
		}

		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			abs := c.absoluteURL(href)
			if abs == "" {
				return
			}
			if c.site.LinkPattern != "" && !strings.Contains(abs, c.site.LinkPattern) {
				return
			}
			if _, ok := seen[abs]; ok {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})

		if len(links) >= args.ArticleCount {
			links = links[:args.ArticleCount]
			break
		}
	}

	return links, nil
}

func (c *Generic) fetchContents(ctx context.Context, jobID int64, links []string) ([]*model.Article, error) {
	var articles []*model.Article

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return articles, err
		}

		doc, err := c.fetchDocument(ctx, link)
		if err != nil {
			log.Printf("Job %d: skip article %s: %v", jobID, link, err)
			continue
		}

		articles = append(articles, &model.Article{
			JobID:       jobID,
			Title:       extractTitle(doc),
			URL:         link,
			Content:     extractContent(doc),
			PublishedAt: extractPublishedAt(doc),
		})
	}

	return articles, nil
}

func (c *Generic) finish(jobID int64, args model.JobArgs, articles []*model.Article) (Result, error) {
	if args.SaveToDB && len(articles) > 0 {
		persist := c.articleRepo.CreateBatch
		if args.ScrapeMode == model.ModeContent {
			// content 模式回填已有链接行的正文
			persist = c.articleRepo.UpsertContentBatch
		}
		if err := persist(articles); err != nil {
			return Result{Success: false, Message: "文章入库失败: " + err.Error()}, err
		}
	}
	if args.SaveToCSV && len(articles) > 0 {
		location, err := c.exporter.ExportArticles(jobID, articles)
		if err != nil {
			return Result{Success: false, Message: "CSV 导出失败: " + err.Error()}, err
		}
		log.Printf("Job %d: exported %d articles to %s", jobID, len(articles), location)
	}

	return Result{
		Success:   true,
		Message:   fmt.Sprintf("收集 %d 篇文章", len(articles)),
		ItemCount: len(articles),
	}, nil
}

// storedLinks mode=content 时复用此前收集、尚无正文的链接
func (c *Generic) storedLinks(jobID int64, limit int) ([]string, error) {
	stored, _, err := c.articleRepo.ListByJobID(jobID, 1, limit)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(stored))
	for _, a := range stored {
		if a.Content == "" {
			links = append(links, a.URL)
		}
	}
	return links, nil
}

func (c *Generic) linkOnlyArticles(jobID int64, links []string) []*model.Article {
	articles := make([]*model.Article, 0, len(links))
	for _, link := range links {
		articles = append(articles, &model.Article{JobID: jobID, URL: link})
	}
	return articles
}

func (c *Generic) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "scrape-go-server/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func (c *Generic) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	base, err := url.Parse(c.site.BaseURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func extractTitle(doc *goquery.Document) string {
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && title != "" {
		return title
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").Text())
}

func extractContent(doc *goquery.Document) string {
	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	var parts []string
	scope.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func extractPublishedAt(doc *goquery.Document) *time.Time {
	raw, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
