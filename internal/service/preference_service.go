package service

import (
	"context"
	"strings"
	"time"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/internal/repository"
)

// PreferenceService 管理客户端的语言与免责声明确认标志。
type PreferenceService interface {
	// Get 返回已保存的偏好，未保存时返回默认值。
	Get(ctx context.Context, clientID string) (model.Preference, error)
	// Update 合并非 nil 字段后保存。
	Update(ctx context.Context, clientID string, language *string, disclaimerAcknowledged *bool) (model.Preference, error)
}

type preferenceService struct {
	repo    repository.PreferenceRepository
	convCfg config.ConversationConfig
	now     func() time.Time
}

// NewPreferenceService 创建一个新的 PreferenceService。
func NewPreferenceService(repo repository.PreferenceRepository, convCfg config.ConversationConfig) PreferenceService {
	return &preferenceService{repo: repo, convCfg: convCfg, now: time.Now}
}

func (s *preferenceService) Get(ctx context.Context, clientID string) (model.Preference, error) {
	pref, err := s.repo.Get(ctx, clientID)
	if err != nil {
		return model.Preference{}, err
	}
	if pref == nil {
		return model.Preference{Language: s.convCfg.DefaultLanguage}, nil
	}
	if pref.Language == "" {
		pref.Language = s.convCfg.DefaultLanguage
	}
	return *pref, nil
}

func (s *preferenceService) Update(ctx context.Context, clientID string, language *string, disclaimerAcknowledged *bool) (model.Preference, error) {
	pref, err := s.Get(ctx, clientID)
	if err != nil {
		return model.Preference{}, err
	}
	if language != nil {
		lang := strings.ToLower(strings.TrimSpace(*language))
		if _, ok := s.convCfg.Welcome[lang]; !ok {
			return model.Preference{}, ErrUnsupportedLanguage
		}
		pref.Language = lang
	}
	if disclaimerAcknowledged != nil {
		pref.DisclaimerAcknowledged = *disclaimerAcknowledged
	}
	pref.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, clientID, pref); err != nil {
		return model.Preference{}, err
	}
	return pref, nil
}
