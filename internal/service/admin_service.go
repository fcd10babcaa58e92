package service

import (
	"context"
	"time"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/internal/repository"
	"healthguide-go/pkg/es"
	"healthguide-go/pkg/storage"
)

// OutcomeListResponse 定义了分诊结果列表 API 的响应结构。
type OutcomeListResponse struct {
	Content       []model.OutcomeDTO `json:"content"`
	TotalElements int64              `json:"totalElements"`
	TotalPages    int                `json:"totalPages"`
	Size          int                `json:"size"`
	Number        int                `json:"number"`
}

// OutcomeSearcher 在检索索引中查找分诊结果。
type OutcomeSearcher interface {
	SearchOutcomes(ctx context.Context, query, level string, size int) ([]model.OutcomeSearchHit, error)
}

// TranscriptLinker 为归档的会话记录生成下载链接。
type TranscriptLinker interface {
	PresignTranscript(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type esOutcomeSearcher struct {
	index string
}

func (s esOutcomeSearcher) SearchOutcomes(ctx context.Context, query, level string, size int) ([]model.OutcomeSearchHit, error) {
	return es.SearchOutcomes(ctx, s.index, query, level, size)
}

type minioTranscriptLinker struct {
	bucket string
}

func (l minioTranscriptLinker) PresignTranscript(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return storage.GetPresignedURL(ctx, l.bucket, objectName, expiry)
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListOutcomes(ctx context.Context, filter model.OutcomeFilter) (*OutcomeListResponse, error)
	SearchOutcomes(ctx context.Context, query, level string, size int) ([]model.OutcomeSearchHit, error)
	TranscriptURL(ctx context.Context, conversationID string) (string, error)
}

type adminService struct {
	outcomeRepo repository.OutcomeRepository
	searcher    OutcomeSearcher
	linker      TranscriptLinker
	urlExpiry   time.Duration
}

// NewAdminService 创建一个使用 Elasticsearch 与 MinIO 的 AdminService。
func NewAdminService(outcomeRepo repository.OutcomeRepository, esCfg config.ElasticsearchConfig, minioCfg config.MinIOConfig) AdminService {
	return NewAdminServiceWith(outcomeRepo, esOutcomeSearcher{index: esCfg.IndexName}, minioTranscriptLinker{bucket: minioCfg.BucketName})
}

// NewAdminServiceWith 使用给定的检索与链接实现创建 AdminService。
func NewAdminServiceWith(outcomeRepo repository.OutcomeRepository, searcher OutcomeSearcher, linker TranscriptLinker) AdminService {
	return &adminService{outcomeRepo: outcomeRepo, searcher: searcher, linker: linker, urlExpiry: 15 * time.Minute}
}

// ListOutcomes 分页列出分诊结果，Offset 由页码换算。
func (s *adminService) ListOutcomes(ctx context.Context, filter model.OutcomeFilter) (*OutcomeListResponse, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	outcomes, total, err := s.outcomeRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	content := make([]model.OutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		content = append(content, o.ToDTO())
	}
	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &OutcomeListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          filter.Limit,
		Number:        filter.Offset / filter.Limit,
	}, nil
}

func (s *adminService) SearchOutcomes(ctx context.Context, query, level string, size int) ([]model.OutcomeSearchHit, error) {
	return s.searcher.SearchOutcomes(ctx, query, level, size)
}

// TranscriptURL 返回会话记录的限时下载链接。
func (s *adminService) TranscriptURL(ctx context.Context, conversationID string) (string, error) {
	outcome, err := s.outcomeRepo.FindByConversationID(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if outcome == nil || outcome.TranscriptObject == "" {
		return "", ErrOutcomeNotFound
	}
	return s.linker.PresignTranscript(ctx, outcome.TranscriptObject, s.urlExpiry)
}
