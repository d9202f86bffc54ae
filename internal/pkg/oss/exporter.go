package oss

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/qs3c/scrape_go_server/internal/model"
)

// Exporter 把抓取结果导出为 CSV。配置了 OSS 时上传 OSS，
// 否则落到本地导出目录。
type Exporter struct {
	client   *Client // 可为 nil
	localDir string
}

func NewExporter(client *Client, localDir string) *Exporter {
	if localDir == "" {
		localDir = "exports"
	}
	return &Exporter{client: client, localDir: localDir}
}

// ExportArticles 导出任务的文章列表，返回文件位置（OSS URL 或本地路径）
func (e *Exporter) ExportArticles(jobID int64, articles []*model.Article) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "title", "url", "published_at", "content"}); err != nil {
		return "", err
	}
	for _, a := range articles {
		publishedAt := ""
		if a.PublishedAt != nil {
			publishedAt = a.PublishedAt.Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatInt(a.ID, 10),
			a.Title,
			a.URL,
			publishedAt,
			a.Content,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%d_%d.csv", jobID, time.Now().Unix())

	if e.client != nil {
		objectKey := fmt.Sprintf("exports/%d/%s", jobID, filename)
		return e.client.UploadFile(objectKey, buf.Bytes(), "text/csv")
	}

	dir := filepath.Join(e.localDir, strconv.FormatInt(jobID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	dest := filepath.Join(dir, filename)
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return dest, nil
}
