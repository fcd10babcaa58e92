// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"healthguide-go/internal/model"
)

// ConversationOutcomeTask is published once when a conversation enters COMPLETE.
type ConversationOutcomeTask struct {
	ConversationID  string              `json:"conversation_id"`
	SessionID       string              `json:"session_id"`
	FallbackSession bool                `json:"fallback_session"`
	Language        string              `json:"language"`
	TriageLevel     model.TriageLevel   `json:"triage_level"`
	Summary         string              `json:"summary"`
	NextSteps       []string            `json:"next_steps"`
	Escalated       bool                `json:"escalated"`
	RedFlagSymptom  string              `json:"red_flag_symptom,omitempty"`
	TurnCount       int                 `json:"turn_count"`
	Messages        []model.ChatMessage `json:"messages"`
	CompletedAt     time.Time           `json:"completed_at"`
}

// NewConversationOutcomeTask builds the task from a completed snapshot.
func NewConversationOutcomeTask(snap model.ConversationSnapshot) ConversationOutcomeTask {
	task := ConversationOutcomeTask{
		ConversationID:  snap.ConversationID,
		SessionID:       snap.Session.ID,
		FallbackSession: snap.Session.Fallback,
		Language:        snap.Language,
		Escalated:       snap.Escalated,
		TurnCount:       snap.TurnCount(),
		Messages:        snap.Messages,
		NextSteps:       []string{},
		CompletedAt:     snap.UpdatedAt,
	}
	if snap.CompletedAt != nil {
		task.CompletedAt = *snap.CompletedAt
	}
	if r := snap.TriageResult; r != nil {
		task.TriageLevel = r.TriageLevel
		task.Summary = r.Summary
		task.NextSteps = append(task.NextSteps, r.RecommendedNextSteps...)
		if r.RedFlagSymptom != nil {
			task.RedFlagSymptom = *r.RedFlagSymptom
		}
	}
	return task
}
