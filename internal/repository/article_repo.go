package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/scrape_go_server/internal/model"
)

type ArticleRepository struct {
	db *gorm.DB
}

func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// CreateBatch 批量写入文章，同一任务下重复 URL 忽略
func (r *ArticleRepository) CreateBatch(articles []*model.Article) error {
	if len(articles) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&articles).Error
}

// UpsertContentBatch 按 job_id+url 写入文章并回填已有行的正文。
// 用于 content 模式：链接行此前已存在，这里补全 title/content/published_at。
func (r *ArticleRepository) UpsertContentBatch(articles []*model.Article) error {
	if len(articles) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "published_at"}),
	}).Create(&articles).Error
}

// ListByJobID 任务收集到的文章，按抓取时间倒序分页
func (r *ArticleRepository) ListByJobID(jobID int64, page, pageSize int) ([]*model.Article, int64, error) {
	var articles []*model.Article
	var total int64

	query := r.db.Model(&model.Article{}).Where("job_id = ?", jobID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&articles).Error; err != nil {
		return nil, 0, err
	}

	return articles, total, nil
}

func (r *ArticleRepository) CountByJobID(jobID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Article{}).Where("job_id = ?", jobID).Count(&count).Error
	return count, err
}
