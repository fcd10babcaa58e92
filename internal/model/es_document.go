// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// OutcomeDocument 定义了存储在 Elasticsearch 中的分诊结果文档。
type OutcomeDocument struct {
	ConversationID string    `json:"conversation_id"` // 文档唯一标识
	SessionID      string    `json:"session_id"`
	TriageLevel    string    `json:"triage_level"`
	Summary        string    `json:"summary"`
	NextSteps      []string  `json:"next_steps"`
	Escalated      bool      `json:"escalated"`
	RedFlagSymptom string    `json:"red_flag_symptom,omitempty"`
	Language       string    `json:"language"`
	CompletedAt    time.Time `json:"completed_at"`
}

// OutcomeSearchHit 定义了返回给管理端的搜索结果结构。
type OutcomeSearchHit struct {
	ConversationID string  `json:"conversationId"`
	TriageLevel    string  `json:"triageLevel"`
	Summary        string  `json:"summary"`
	Escalated      bool    `json:"escalated"`
	Score          float64 `json:"score"`
}
