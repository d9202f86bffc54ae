package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelScrapeProgress = "scrape_progress"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Type      string `json:"type"`
	JobID     int64  `json:"job_id"`
	HistoryID int64  `json:"history_id,omitempty"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ItemCount int    `json:"item_count,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// 阶段对应的进度百分比
var PhaseProgress = map[string]int{
	"init":             0,
	"link_collection":  50,
	"content_scraping": 50,
	"completed":        100,
	"failed":           100,
	"cancelled":        100,
}

// 阶段对应的消息
var PhaseMessages = map[string]string{
	"init":             "任务初始化",
	"link_collection":  "正在收集文章链接",
	"content_scraping": "正在抓取文章内容",
	"completed":        "抓取完成",
	"failed":           "抓取失败",
	"cancelled":        "任务已取消",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = "scrape_progress"

	// 自动填充进度和消息
	if msg.Progress == 0 && msg.Phase != "" {
		if progress, ok := PhaseProgress[msg.Phase]; ok {
			msg.Progress = progress
		}
	}
	if msg.Message == "" && msg.Phase != "" {
		if message, ok := PhaseMessages[msg.Phase]; ok {
			msg.Message = message
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelScrapeProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelScrapeProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
