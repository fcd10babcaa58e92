package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"healthguide-go/internal/model"
)

// PreferenceRepository 定义了客户端偏好（语言、免责声明确认）的存取接口。
type PreferenceRepository interface {
	// Get 在偏好不存在时返回 (nil, nil)。
	Get(ctx context.Context, clientID string) (*model.Preference, error)
	Save(ctx context.Context, clientID string, pref model.Preference) error
}

type redisPreferenceRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewPreferenceRepository 创建一个新的 PreferenceRepository 实例，ttl 为 0 表示不过期。
func NewPreferenceRepository(redisClient *redis.Client, ttl time.Duration) PreferenceRepository {
	return &redisPreferenceRepository{redisClient: redisClient, ttl: ttl}
}

func preferenceKey(clientID string) string {
	return fmt.Sprintf("client:%s:preference", clientID)
}

func (r *redisPreferenceRepository) Get(ctx context.Context, clientID string) (*model.Preference, error) {
	values, err := r.redisClient.HGetAll(ctx, preferenceKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	pref := &model.Preference{Language: values["language"]}
	pref.DisclaimerAcknowledged, _ = strconv.ParseBool(values["disclaimer_acknowledged"])
	if ms, err := strconv.ParseInt(values["updated_at"], 10, 64); err == nil {
		pref.UpdatedAt = time.UnixMilli(ms)
	}
	return pref, nil
}

func (r *redisPreferenceRepository) Save(ctx context.Context, clientID string, pref model.Preference) error {
	key := preferenceKey(clientID)
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key,
		"language", pref.Language,
		"disclaimer_acknowledged", strconv.FormatBool(pref.DisclaimerAcknowledged),
		"updated_at", strconv.FormatInt(pref.UpdatedAt.UnixMilli(), 10),
	)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}
