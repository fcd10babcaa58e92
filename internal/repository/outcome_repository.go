package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthguide-go/internal/model"
)

// OutcomeRepository 定义了分诊结果记录的操作接口。
type OutcomeRepository interface {
	Upsert(ctx context.Context, outcome *model.TriageOutcome) error
	List(ctx context.Context, filter model.OutcomeFilter) ([]model.TriageOutcome, int64, error)
	// FindByConversationID 在记录不存在时返回 (nil, nil)。
	FindByConversationID(ctx context.Context, conversationID string) (*model.TriageOutcome, error)
}

type outcomeRepository struct {
	db *gorm.DB
}

// NewOutcomeRepository 创建一个新的 OutcomeRepository 实例。
func NewOutcomeRepository(db *gorm.DB) OutcomeRepository {
	return &outcomeRepository{db: db}
}

// Upsert 以 conversation_id 为唯一键写入，重复投递时覆盖已有记录。
func (r *outcomeRepository) Upsert(ctx context.Context, outcome *model.TriageOutcome) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"session_id", "fallback_session", "language", "triage_level", "summary", "next_steps",
			"escalated", "red_flag_symptom", "turn_count", "transcript_object", "completed_at",
		}),
	}).Create(outcome).Error
}

func (r *outcomeRepository) List(ctx context.Context, filter model.OutcomeFilter) ([]model.TriageOutcome, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.TriageOutcome{})
	if filter.TriageLevel != "" {
		query = query.Where("triage_level = ?", filter.TriageLevel)
	}
	if filter.Escalated != nil {
		query = query.Where("escalated = ?", *filter.Escalated)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var outcomes []model.TriageOutcome
	err := query.Order("completed_at DESC").Limit(limit).Offset(filter.Offset).Find(&outcomes).Error
	return outcomes, total, err
}

func (r *outcomeRepository) FindByConversationID(ctx context.Context, conversationID string) (*model.TriageOutcome, error) {
	var outcome model.TriageOutcome
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&outcome).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}
