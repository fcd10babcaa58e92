// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"healthguide-go/internal/model"
)

// ConversationRepository 定义了会话快照的存取接口。
type ConversationRepository interface {
	SaveSnapshot(ctx context.Context, snap model.ConversationSnapshot, ttl time.Duration) error
	// GetSnapshot 在快照不存在时返回 (nil, nil)。
	GetSnapshot(ctx context.Context, conversationID string) (*model.ConversationSnapshot, error)
	DeleteSnapshot(ctx context.Context, conversationID string) error
	ListClientConversations(ctx context.Context, clientID string) ([]string, error)
	BindClient(ctx context.Context, clientID, conversationID string, ttl time.Duration) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func snapshotKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

func clientConversationsKey(clientID string) string {
	return fmt.Sprintf("client:%s:conversations", clientID)
}

// SaveSnapshot 覆盖写入会话快照。
func (r *redisConversationRepository) SaveSnapshot(ctx context.Context, snap model.ConversationSnapshot, ttl time.Duration) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation snapshot: %w", err)
	}
	if err := r.redisClient.Set(ctx, snapshotKey(snap.ConversationID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation snapshot: %w", err)
	}
	return nil
}

// GetSnapshot 从 Redis 读取会话快照。
func (r *redisConversationRepository) GetSnapshot(ctx context.Context, conversationID string) (*model.ConversationSnapshot, error) {
	jsonData, err := r.redisClient.Get(ctx, snapshotKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation snapshot: %w", err)
	}
	var snap model.ConversationSnapshot
	if err := json.Unmarshal([]byte(jsonData), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot 删除会话快照。
func (r *redisConversationRepository) DeleteSnapshot(ctx context.Context, conversationID string) error {
	if err := r.redisClient.Del(ctx, snapshotKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation snapshot: %w", err)
	}
	return nil
}

// BindClient 记录客户端发起过的会话，按开始时间排序。
func (r *redisConversationRepository) BindClient(ctx context.Context, clientID, conversationID string, ttl time.Duration) error {
	key := clientConversationsKey(clientID)
	pipe := r.redisClient.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(time.Now().UnixMilli()), Member: conversationID})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bind client conversation: %w", err)
	}
	return nil
}

// ListClientConversations 返回客户端的会话 ID，最新的在前。
func (r *redisConversationRepository) ListClientConversations(ctx context.Context, clientID string) ([]string, error) {
	ids, err := r.redisClient.ZRevRange(ctx, clientConversationsKey(clientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list client conversations: %w", err)
	}
	return ids, nil
}
