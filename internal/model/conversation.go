// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 标识消息的作者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage 代表会话历史中的单条消息，创建后不再修改。
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry 是发往分诊服务的历史消息格式，不携带时间戳。
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StripTimestamps 将历史消息转换为只含 role/content 的传输格式。
func StripTimestamps(messages []ChatMessage) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}

// Session 是一次会话在分诊服务侧的身份。Fallback 为 true 表示服务不可达时本地生成的标识。
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Fallback  bool      `json:"fallback"`
}

// ConversationState 是分诊状态机的状态。
type ConversationState string

const (
	StateOpen               ConversationState = "OPEN"
	StateComplete           ConversationState = "COMPLETE"
	StateProvidersRequested ConversationState = "PROVIDERS_REQUESTED"
	StateProvidersShown     ConversationState = "PROVIDERS_SHOWN"
)

// ConversationSnapshot 是某一时刻会话控制器的只读视图，供前端渲染与持久化使用。
type ConversationSnapshot struct {
	ConversationID         string            `json:"conversation_id"`
	Session                Session           `json:"session"`
	Language               string            `json:"language"`
	DisclaimerAcknowledged bool              `json:"disclaimer_acknowledged"`
	State                  ConversationState `json:"state"`
	Escalated              bool              `json:"escalated"`
	Busy                   bool              `json:"busy"`
	InputEnabled           bool              `json:"input_enabled"`

	TriageResult            *TriageResult `json:"triage_result,omitempty"`
	TriageSummaryVisible    bool          `json:"triage_summary_visible"`
	ProviderLookupAvailable bool          `json:"provider_lookup_available"`
	ProvidersRevealed       bool          `json:"providers_revealed"`
	LookupPending           bool          `json:"lookup_pending"`
	LookupError             string        `json:"lookup_error,omitempty"`
	Providers               []Provider    `json:"providers"`

	Messages    []ChatMessage `json:"messages"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TurnCount 返回已完成的轮次数（不含欢迎语）。
func (s ConversationSnapshot) TurnCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
