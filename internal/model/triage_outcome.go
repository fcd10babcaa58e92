package model

import "time"

// TriageOutcome 对应于数据库中的 'triage_outcomes' 表。
// 每个进入完成状态的会话对应一条记录，由结果处理管道写入。
type TriageOutcome struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"conversationId"`
	SessionID        string    `gorm:"type:varchar(128);index;not null" json:"sessionId"`
	FallbackSession  bool      `gorm:"not null;default:false" json:"fallbackSession"`
	Language         string    `gorm:"type:varchar(8)" json:"language"`
	TriageLevel      string    `gorm:"type:varchar(16);index;not null" json:"triageLevel"`
	Summary          string    `gorm:"type:text" json:"summary"`
	NextSteps        []string  `gorm:"serializer:json;type:text" json:"nextSteps"`
	Escalated        bool      `gorm:"index;not null;default:false" json:"escalated"`
	RedFlagSymptom   string    `gorm:"type:varchar(255)" json:"redFlagSymptom"`
	TurnCount        int       `gorm:"not null" json:"turnCount"`
	TranscriptObject string    `gorm:"type:varchar(255)" json:"transcriptObject"`
	CompletedAt      time.Time `gorm:"index" json:"completedAt"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TriageOutcome) TableName() string {
	return "triage_outcomes"
}

// OutcomeFilter 是管理端列出分诊结果时的筛选条件。
type OutcomeFilter struct {
	TriageLevel string
	Escalated   *bool
	Limit       int
	Offset      int
}

// OutcomeDTO 定义了返回给管理端的分诊结果结构。
type OutcomeDTO struct {
	ConversationID string    `json:"conversationId"`
	SessionID      string    `json:"sessionId"`
	TriageLevel    string    `json:"triageLevel"`
	Summary        string    `json:"summary"`
	NextSteps      []string  `json:"nextSteps"`
	Escalated      bool      `json:"escalated"`
	RedFlagSymptom string    `json:"redFlagSymptom,omitempty"`
	TurnCount      int       `json:"turnCount"`
	CompletedAt    LocalTime `json:"completedAt"`
}

// ToDTO 转换为管理端展示结构。
func (o TriageOutcome) ToDTO() OutcomeDTO {
	return OutcomeDTO{
		ConversationID: o.ConversationID,
		SessionID:      o.SessionID,
		TriageLevel:    o.TriageLevel,
		Summary:        o.Summary,
		NextSteps:      o.NextSteps,
		Escalated:      o.Escalated,
		RedFlagSymptom: o.RedFlagSymptom,
		TurnCount:      o.TurnCount,
		CompletedAt:    LocalTime(o.CompletedAt),
	}
}
