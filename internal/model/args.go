package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// 抓取模式
const (
	ModeFull    = "full"    // 链接收集 + 正文抓取
	ModeLinks   = "links"   // 仅收集文章链接
	ModeContent = "content" // 仅抓取已收集链接的正文
)

// JobArgs 任务参数。所有识别的键都在这里枚举，缺省值见 DefaultArgs。
// 整体以 JSON 存储在 scrape_jobs.args 列；写库时总是整值替换，
// 不要原地修改嵌套键。
type JobArgs struct {
	MaxPages     int    `json:"max_pages"`     // 列表页抓取上限
	ArticleCount int    `json:"article_count"` // 单次运行最多收集的文章数
	AIOnly       bool   `json:"ai_only"`       // 仅保留 AI 相关文章（由爬虫实现解释）
	ScrapeMode   string `json:"scrape_mode"`   // full / links / content
	MaxRetries   int    `json:"max_retries"`   // 0 表示禁用重试
	SaveToCSV    bool   `json:"to_csv"`
	SaveToDB     bool   `json:"to_db"`

	// 超时与取消调参，均为秒
	TimeoutSec                 int `json:"timeout"`
	MaxCancelWaitSec           int `json:"max_cancel_wait"`
	CancelInterruptIntervalSec int `json:"cancel_interrupt_interval"`
}

// DefaultArgs 参数缺省值。每个任务入库前都会以此补全，
// 保证任何任务的参数集都是完整、自描述的。
func DefaultArgs() JobArgs {
	return JobArgs{
		MaxPages:                   5,
		ArticleCount:               20,
		AIOnly:                     false,
		ScrapeMode:                 ModeFull,
		MaxRetries:                 3,
		SaveToCSV:                  false,
		SaveToDB:                   true,
		TimeoutSec:                 30,
		MaxCancelWaitSec:           10,
		CancelInterruptIntervalSec: 1,
	}
}

// FillDefaults 把零值字段视为未设置并补上缺省值。
// 显式的 max_retries=0（禁用重试）或 to_db=false 只能从 JSON 进来，
// 由 UnmarshalJSON 先铺缺省值再解码来保留；Go 代码里构造参数
// 应从 DefaultArgs() 出发修改，而不是零值结构加 FillDefaults。
func (a *JobArgs) FillDefaults() {
	def := DefaultArgs()
	if a.MaxPages <= 0 {
		a.MaxPages = def.MaxPages
	}
	if a.ArticleCount <= 0 {
		a.ArticleCount = def.ArticleCount
	}
	if a.ScrapeMode == "" {
		a.ScrapeMode = def.ScrapeMode
	}
	if a.MaxRetries <= 0 {
		a.MaxRetries = def.MaxRetries
	}
	if !a.SaveToDB {
		a.SaveToDB = def.SaveToDB
	}
	if a.TimeoutSec <= 0 {
		a.TimeoutSec = def.TimeoutSec
	}
	if a.MaxCancelWaitSec <= 0 {
		a.MaxCancelWaitSec = def.MaxCancelWaitSec
	}
	if a.CancelInterruptIntervalSec <= 0 {
		a.CancelInterruptIntervalSec = def.CancelInterruptIntervalSec
	}
}

// UnmarshalJSON 先铺缺省值再解码，缺失的键拿到缺省值，
// 显式写出的键保持原值，包括 max_retries 为 0 和 to_db 为 false。
// DTO 绑定和 Scan 都经过这里。
func (a *JobArgs) UnmarshalJSON(data []byte) error {
	type plain JobArgs
	decoded := plain(DefaultArgs())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = JobArgs(decoded)
	return nil
}

// Validate 校验参数取值
func (a JobArgs) Validate() error {
	switch a.ScrapeMode {
	case ModeFull, ModeLinks, ModeContent:
	default:
		return fmt.Errorf("无效的抓取模式: %q", a.ScrapeMode)
	}
	return nil
}

func (a JobArgs) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *JobArgs) Scan(value interface{}) error {
	if value == nil {
		*a = DefaultArgs()
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("无法解析 args 列: %T", value)
	}
	// UnmarshalJSON 负责补全历史行缺失的键
	return json.Unmarshal(bytes, a)
}
