// Package pipeline 定义了会话结果的落库流程。
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/internal/repository"
	"healthguide-go/pkg/es"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/storage"
	"healthguide-go/pkg/tasks"
)

// TranscriptStore 归档会话记录，返回对象名。
type TranscriptStore interface {
	PutTranscript(ctx context.Context, conversationID string, data []byte) (string, error)
}

// OutcomeIndexer 把分诊结果写入检索索引。
type OutcomeIndexer interface {
	IndexOutcome(ctx context.Context, doc model.OutcomeDocument) error
}

type minioTranscriptStore struct {
	bucket string
}

func (s minioTranscriptStore) PutTranscript(ctx context.Context, conversationID string, data []byte) (string, error) {
	return storage.PutTranscript(ctx, s.bucket, conversationID, data)
}

type esOutcomeIndexer struct {
	index string
}

func (i esOutcomeIndexer) IndexOutcome(ctx context.Context, doc model.OutcomeDocument) error {
	return es.IndexOutcome(ctx, i.index, doc)
}

// Processor 封装了会话结果处理的所有依赖和逻辑。
type Processor struct {
	outcomeRepo repository.OutcomeRepository
	transcripts TranscriptStore
	indexer     OutcomeIndexer
}

// NewProcessor 创建一个使用 MinIO 与 Elasticsearch 的 Processor 实例。
func NewProcessor(esCfg config.ElasticsearchConfig, minioCfg config.MinIOConfig, outcomeRepo repository.OutcomeRepository) *Processor {
	return NewProcessorWith(outcomeRepo, minioTranscriptStore{bucket: minioCfg.BucketName}, esOutcomeIndexer{index: esCfg.IndexName})
}

// NewProcessorWith 使用给定的归档与索引实现创建 Processor。
func NewProcessorWith(outcomeRepo repository.OutcomeRepository, transcripts TranscriptStore, indexer OutcomeIndexer) *Processor {
	return &Processor{outcomeRepo: outcomeRepo, transcripts: transcripts, indexer: indexer}
}

// transcript 是归档到对象存储中的会话记录格式。
type transcript struct {
	ConversationID string              `json:"conversation_id"`
	SessionID      string              `json:"session_id"`
	Language       string              `json:"language"`
	TriageLevel    model.TriageLevel   `json:"triage_level"`
	Escalated      bool                `json:"escalated"`
	Messages       []model.ChatMessage `json:"messages"`
}

// Process 依次归档会话记录、写入 MySQL、写入 Elasticsearch。每一步都是幂等的，失败时由消费者重试整条任务。
func (p *Processor) Process(ctx context.Context, task tasks.ConversationOutcomeTask) error {
	log.Infof("[Processor] 开始处理会话结果, conversationID: %s, level: %s, escalated: %t", task.ConversationID, task.TriageLevel, task.Escalated)

	// 1. 归档会话记录
	data, err := json.Marshal(transcript{
		ConversationID: task.ConversationID,
		SessionID:      task.SessionID,
		Language:       task.Language,
		TriageLevel:    task.TriageLevel,
		Escalated:      task.Escalated,
		Messages:       task.Messages,
	})
	if err != nil {
		return fmt.Errorf("序列化会话记录失败: %w", err)
	}
	objectName, err := p.transcripts.PutTranscript(ctx, task.ConversationID, data)
	if err != nil {
		log.Errorf("[Processor] 步骤1: 归档会话记录失败, conversationID: %s, Error: %v", task.ConversationID, err)
		return err
	}
	log.Infof("[Processor] 步骤1: 会话记录已归档, object: %s, size: %d", objectName, len(data))

	// 2. 写入 MySQL
	outcome := &model.TriageOutcome{
		ConversationID:   task.ConversationID,
		SessionID:        task.SessionID,
		FallbackSession:  task.FallbackSession,
		Language:         task.Language,
		TriageLevel:      string(task.TriageLevel),
		Summary:          task.Summary,
		NextSteps:        task.NextSteps,
		Escalated:        task.Escalated,
		RedFlagSymptom:   task.RedFlagSymptom,
		TurnCount:        task.TurnCount,
		TranscriptObject: objectName,
		CompletedAt:      task.CompletedAt,
	}
	if err := p.outcomeRepo.Upsert(ctx, outcome); err != nil {
		log.Errorf("[Processor] 步骤2: 写入分诊结果失败, conversationID: %s, Error: %v", task.ConversationID, err)
		return fmt.Errorf("写入分诊结果失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 分诊结果已写入数据库")

	// 3. 写入 Elasticsearch
	doc := model.OutcomeDocument{
		ConversationID: task.ConversationID,
		SessionID:      task.SessionID,
		TriageLevel:    string(task.TriageLevel),
		Summary:        task.Summary,
		NextSteps:      task.NextSteps,
		Escalated:      task.Escalated,
		RedFlagSymptom: task.RedFlagSymptom,
		Language:       task.Language,
		CompletedAt:    task.CompletedAt,
	}
	if err := p.indexer.IndexOutcome(ctx, doc); err != nil {
		log.Errorf("[Processor] 步骤3: 索引分诊结果失败, conversationID: %s, Error: %v", task.ConversationID, err)
		return fmt.Errorf("索引分诊结果失败: %w", err)
	}

	log.Infof("[Processor] 会话结果处理完成, conversationID: %s", task.ConversationID)
	return nil
}
