package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
	"healthguide-go/internal/repository"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/tasks"
	"healthguide-go/pkg/triage"
)

// OutcomePublisher 发布完成会话的分诊结果。
type OutcomePublisher interface {
	Publish(ctx context.Context, task tasks.ConversationOutcomeTask) error
}

// TokenIssuer 为会话签发访问令牌。
type TokenIssuer interface {
	GenerateConversationToken(conversationID, clientID string) (string, error)
}

// StartOptions 是开始会话时的可选输入，未提供的字段取客户端偏好或默认值。
type StartOptions struct {
	ClientID               string
	Language               string
	DisclaimerAcknowledged *bool
}

// StartResult 是开始会话的结果。
type StartResult struct {
	ConversationID string                     `json:"conversation_id"`
	Token          string                     `json:"token"`
	Snapshot       model.ConversationSnapshot `json:"snapshot"`
}

// ConversationService 管理进程内所有活跃会话。
type ConversationService interface {
	Start(ctx context.Context, opts StartOptions) (*StartResult, error)
	Get(ctx context.Context, conversationID string) (model.ConversationSnapshot, error)
	Send(ctx context.Context, conversationID, message string) (TurnResult, error)
	RequestProviders(ctx context.Context, conversationID string, loc model.Location) (model.ConversationSnapshot, error)
	RevealProviders(ctx context.Context, conversationID string) (model.ConversationSnapshot, error)
	End(ctx context.Context, conversationID string) (model.ConversationSnapshot, error)
	ListClientConversations(ctx context.Context, clientID string) ([]string, error)
	// Subscribe 订阅会话快照推送，返回的函数用于取消订阅。
	Subscribe(conversationID string) (<-chan model.ConversationSnapshot, func(), error)
	SweepIdle(now time.Time) int
	RunSweeper(ctx context.Context)
	Shutdown()
}

// 测试替换点
var newConversationID = func() string { return uuid.NewString() }

const subscriberBuffer = 16

type conversationEntry struct {
	conv        *Conversation
	subscribers map[chan model.ConversationSnapshot]struct{}
}

type conversationService struct {
	triageCfg config.TriageConfig
	convCfg   config.ConversationConfig
	sessions  *SessionManager
	backend   triage.Client
	repo      repository.ConversationRepository
	prefs     PreferenceService
	publisher OutcomePublisher
	tokens    TokenIssuer

	baseCtx context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	conversations map[string]*conversationEntry
}

// NewConversationService 创建一个新的 ConversationService。publisher 为 nil 时不发布分诊结果。
func NewConversationService(
	triageCfg config.TriageConfig,
	convCfg config.ConversationConfig,
	backend triage.Client,
	repo repository.ConversationRepository,
	prefs PreferenceService,
	publisher OutcomePublisher,
	tokens TokenIssuer,
) ConversationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &conversationService{
		triageCfg:     triageCfg,
		convCfg:       convCfg,
		sessions:      NewSessionManager(backend, triageCfg.SessionTimeout),
		backend:       backend,
		repo:          repo,
		prefs:         prefs,
		publisher:     publisher,
		tokens:        tokens,
		baseCtx:       ctx,
		cancel:        cancel,
		conversations: make(map[string]*conversationEntry),
	}
}

// Start 获取会话标识并创建新的分诊会话。语言与免责声明标志在此确定后显式传入控制器。
func (s *conversationService) Start(ctx context.Context, opts StartOptions) (*StartResult, error) {
	language := strings.ToLower(strings.TrimSpace(opts.Language))
	if language != "" {
		if _, ok := s.convCfg.Welcome[language]; !ok {
			return nil, ErrUnsupportedLanguage
		}
	}

	pref := model.Preference{Language: s.convCfg.DefaultLanguage}
	if opts.ClientID != "" && s.prefs != nil {
		stored, err := s.prefs.Get(ctx, opts.ClientID)
		if err != nil {
			log.Warnw("[ConversationService] 读取客户端偏好失败，使用默认值", "clientID", opts.ClientID, "error", err)
		} else {
			pref = stored
		}
	}
	if language == "" {
		language = pref.Language
	}
	disclaimer := pref.DisclaimerAcknowledged
	if opts.DisclaimerAcknowledged != nil {
		disclaimer = *opts.DisclaimerAcknowledged
	}
	if opts.ClientID != "" && s.prefs != nil && (opts.Language != "" || opts.DisclaimerAcknowledged != nil) {
		if _, err := s.prefs.Update(ctx, opts.ClientID, &language, &disclaimer); err != nil {
			log.Warnw("[ConversationService] 保存客户端偏好失败", "clientID", opts.ClientID, "error", err)
		}
	}

	id := newConversationID()
	session := s.sessions.Acquire(ctx)

	conv := NewConversation(s.baseCtx, ConversationOptions{
		ID:                     id,
		Session:                session,
		Language:               language,
		DisclaimerAcknowledged: disclaimer,
		Welcome:                s.convCfg.WelcomeFor(language),
		LookupErrorText:        s.convCfg.LookupErrorText,
		Exchange:               NewExchangeClient(s.backend, s.triageCfg.ExchangeTimeout, s.convCfg.FallbackReply),
		Lookup:                 NewProviderLookupClient(s.backend, s.triageCfg.LookupTimeout, s.triageCfg.DefaultRadiusKM),
		Hooks: ConversationHooks{
			OnChange:   func(snap model.ConversationSnapshot) { s.onChange(id, snap) },
			OnComplete: s.onComplete,
		},
	})

	token, err := s.tokens.GenerateConversationToken(id, opts.ClientID)
	if err != nil {
		conv.End()
		return nil, err
	}

	s.mu.Lock()
	s.conversations[id] = &conversationEntry{conv: conv, subscribers: make(map[chan model.ConversationSnapshot]struct{})}
	s.mu.Unlock()

	snap := conv.Snapshot()
	s.persist(snap)
	if opts.ClientID != "" && s.repo != nil {
		if err := s.repo.BindClient(ctx, opts.ClientID, id, s.convCfg.SnapshotTTL); err != nil {
			log.Warnw("[ConversationService] 记录客户端会话失败", "clientID", opts.ClientID, "error", err)
		}
	}

	log.Infow("[ConversationService] 会话已开始", "conversationID", id, "sessionID", session.ID,
		"fallbackSession", session.Fallback, "language", language)
	return &StartResult{ConversationID: id, Token: token, Snapshot: snap}, nil
}

func (s *conversationService) lookup(conversationID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.conversations[conversationID]; ok {
		return e.conv
	}
	return nil
}

// live 返回活跃会话。已结束但仍有快照的会话返回 ErrConversationClosed。
func (s *conversationService) live(ctx context.Context, conversationID string) (*Conversation, error) {
	if conv := s.lookup(conversationID); conv != nil {
		return conv, nil
	}
	if s.repo != nil {
		if snap, err := s.repo.GetSnapshot(ctx, conversationID); err == nil && snap != nil {
			return nil, ErrConversationClosed
		}
	}
	return nil, ErrConversationNotFound
}

// Get 返回会话快照，会话已被回收时读取持久化的快照。
func (s *conversationService) Get(ctx context.Context, conversationID string) (model.ConversationSnapshot, error) {
	if conv := s.lookup(conversationID); conv != nil {
		return conv.Snapshot(), nil
	}
	if s.repo == nil {
		return model.ConversationSnapshot{}, ErrConversationNotFound
	}
	snap, err := s.repo.GetSnapshot(ctx, conversationID)
	if err != nil {
		return model.ConversationSnapshot{}, err
	}
	if snap == nil {
		return model.ConversationSnapshot{}, ErrConversationNotFound
	}
	return *snap, nil
}

func (s *conversationService) Send(ctx context.Context, conversationID, message string) (TurnResult, error) {
	conv, err := s.live(ctx, conversationID)
	if err != nil {
		return TurnResult{}, err
	}
	return conv.Send(message)
}

func (s *conversationService) RequestProviders(ctx context.Context, conversationID string, loc model.Location) (model.ConversationSnapshot, error) {
	conv, err := s.live(ctx, conversationID)
	if err != nil {
		return model.ConversationSnapshot{}, err
	}
	return conv.RequestProviders(loc)
}

func (s *conversationService) RevealProviders(ctx context.Context, conversationID string) (model.ConversationSnapshot, error) {
	conv, err := s.live(ctx, conversationID)
	if err != nil {
		return model.ConversationSnapshot{}, err
	}
	return conv.RevealProviders()
}

// End 丢弃会话：取消在途调用、保存最终快照并关闭所有订阅。
func (s *conversationService) End(ctx context.Context, conversationID string) (model.ConversationSnapshot, error) {
	s.mu.Lock()
	e, ok := s.conversations[conversationID]
	if ok {
		delete(s.conversations, conversationID)
	}
	s.mu.Unlock()
	if !ok {
		return model.ConversationSnapshot{}, ErrConversationNotFound
	}

	snap := e.conv.End()
	s.persist(snap)
	s.mu.Lock()
	for ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
	s.mu.Unlock()

	log.Infow("[ConversationService] 会话已结束", "conversationID", conversationID, "state", snap.State, "turns", snap.TurnCount())
	return snap, nil
}

func (s *conversationService) ListClientConversations(ctx context.Context, clientID string) ([]string, error) {
	if s.repo == nil || clientID == "" {
		return []string{}, nil
	}
	return s.repo.ListClientConversations(ctx, clientID)
}

func (s *conversationService) Subscribe(conversationID string) (<-chan model.ConversationSnapshot, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil, ErrConversationNotFound
	}
	ch := make(chan model.ConversationSnapshot, subscriberBuffer)
	e.subscribers[ch] = struct{}{}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := e.subscribers[ch]; ok {
				delete(e.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, unsubscribe, nil
}

func (s *conversationService) onChange(conversationID string, snap model.ConversationSnapshot) {
	s.persist(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.conversations[conversationID]
	if !ok {
		return
	}
	for ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			// 订阅方消费过慢时丢弃本次推送，下一次快照会覆盖
			log.Warnw("[ConversationService] 快照推送队列已满，丢弃一次推送", "conversationID", conversationID)
		}
	}
}

func (s *conversationService) onComplete(snap model.ConversationSnapshot) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, tasks.NewConversationOutcomeTask(snap)); err != nil {
		log.Error("[ConversationService] 发布分诊结果失败", err)
	}
}

// persist 尽力保存快照，失败只记录日志。
func (s *conversationService) persist(snap model.ConversationSnapshot) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.repo.SaveSnapshot(ctx, snap, s.convCfg.SnapshotTTL); err != nil {
		log.Warnw("[ConversationService] 保存会话快照失败", "conversationID", snap.ConversationID, "error", err)
	}
}

// SweepIdle 结束所有空闲超过 IdleTTL 且没有在途调用的会话，返回结束的数量。
func (s *conversationService) SweepIdle(now time.Time) int {
	if s.convCfg.IdleTTL <= 0 {
		return 0
	}
	var idle []string
	s.mu.Lock()
	for id, e := range s.conversations {
		if now.Sub(e.conv.LastActivity()) < s.convCfg.IdleTTL {
			continue
		}
		snap := e.conv.Snapshot()
		if snap.Busy || snap.LookupPending {
			continue
		}
		idle = append(idle, id)
	}
	s.mu.Unlock()

	for _, id := range idle {
		_, _ = s.End(context.Background(), id)
	}
	if len(idle) > 0 {
		log.Infof("[ConversationService] 回收空闲会话 %d 个", len(idle))
	}
	return len(idle)
}

// RunSweeper 按 SweepInterval 周期回收空闲会话，ctx 取消时退出。
func (s *conversationService) RunSweeper(ctx context.Context) {
	interval := s.convCfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepIdle(now)
		}
	}
}

// Shutdown 结束所有活跃会话并取消在途调用。
func (s *conversationService) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_, _ = s.End(context.Background(), id)
	}
	s.cancel()
}
