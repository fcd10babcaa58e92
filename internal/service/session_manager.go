package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/log"
)

// SessionBackend 是会话创建所需的远端能力。
type SessionBackend interface {
	CreateSession(ctx context.Context) (string, error)
}

// SessionManager 为每个会话获取一次会话标识，失败时本地生成。
type SessionManager struct {
	backend SessionBackend
	timeout time.Duration
	now     func() time.Time
}

// 进程内序号，保证同一毫秒内的多次降级仍得到不同的标识。
var fallbackSeq atomic.Uint64

// NewSessionManager 创建一个新的 SessionManager。timeout 为 0 表示不额外限制。
func NewSessionManager(backend SessionBackend, timeout time.Duration) *SessionManager {
	return &SessionManager{backend: backend, timeout: timeout, now: time.Now}
}

// Acquire 只尝试一次远端创建，任何失败都回退为本地标识，不向调用方返回错误。
func (m *SessionManager) Acquire(ctx context.Context) model.Session {
	createdAt := m.now()
	if m.backend != nil {
		callCtx := ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		id, err := m.backend.CreateSession(callCtx)
		if err == nil && strings.TrimSpace(id) != "" {
			return model.Session{ID: id, CreatedAt: createdAt}
		}
		if err == nil {
			err = errors.New("empty session id")
		}
		log.Warnw("[SessionManager] 会话创建失败，使用本地会话标识", "error", err)
	}
	return model.Session{
		ID:        fallbackSessionID(createdAt),
		CreatedAt: createdAt,
		Fallback:  true,
	}
}

func fallbackSessionID(t time.Time) string {
	return fmt.Sprintf("session-%d-%d", t.UnixMilli(), fallbackSeq.Add(1))
}
