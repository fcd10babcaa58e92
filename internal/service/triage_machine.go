package service

import (
	"context"
	"sync"
	"time"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/log"
)

// ConversationHooks 在状态变化后（锁外）被调用。
type ConversationHooks struct {
	// OnChange 在每次可见状态变化后调用，包括用户消息的乐观追加。
	OnChange func(model.ConversationSnapshot)
	// OnComplete 仅在 OPEN -> COMPLETE 时调用一次。
	OnComplete func(model.ConversationSnapshot)
}

// ConversationOptions 是构造会话控制器所需的全部输入，语言与免责声明标志由调用方显式传入。
type ConversationOptions struct {
	ID                     string
	Session                model.Session
	Language               string
	DisclaimerAcknowledged bool
	Welcome                string
	LookupErrorText        string
	Exchange               *ExchangeClient
	Lookup                 *ProviderLookupClient
	Hooks                  ConversationHooks
}

// TurnResult 是一轮对话结束后的结果。
type TurnResult struct {
	Reply     string
	Fallback  bool
	Completed bool
	Snapshot  model.ConversationSnapshot
}

// Conversation 是单个会话的分诊状态机。历史消息只由它追加。
type Conversation struct {
	mu sync.Mutex

	id                     string
	session                model.Session
	language               string
	disclaimerAcknowledged bool
	lookupErrorText        string

	state             model.ConversationState
	escalated         bool
	result            *model.TriageResult
	providersRevealed bool
	providers         []model.Provider
	lookupError       string
	messages          []model.ChatMessage
	completedAt       *time.Time
	updatedAt         time.Time
	ended             bool

	exchange *ExchangeClient
	lookup   *ProviderLookupClient
	hooks    ConversationHooks

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewConversation 创建处于 OPEN 状态的会话。parent 取消时所有在途调用随之取消。
func NewConversation(parent context.Context, opts ConversationOptions) *Conversation {
	ctx, cancel := context.WithCancel(parent)
	c := &Conversation{
		id:                     opts.ID,
		session:                opts.Session,
		language:               opts.Language,
		disclaimerAcknowledged: opts.DisclaimerAcknowledged,
		lookupErrorText:        opts.LookupErrorText,
		state:                  model.StateOpen,
		providers:              []model.Provider{},
		messages:               []model.ChatMessage{},
		exchange:               opts.Exchange,
		lookup:                 opts.Lookup,
		hooks:                  opts.Hooks,
		ctx:                    ctx,
		cancel:                 cancel,
		now:                    time.Now,
	}
	if c.exchange == nil {
		c.exchange = NewExchangeClient(nil, 0, "")
	}
	if c.lookup == nil {
		c.lookup = NewProviderLookupClient(nil, 0, 0)
	}
	c.updatedAt = c.now()
	if opts.Welcome != "" {
		c.messages = append(c.messages, model.ChatMessage{Role: model.RoleAssistant, Content: opts.Welcome, Timestamp: c.updatedAt})
	}
	return c
}

// ID 返回会话句柄。
func (c *Conversation) ID() string {
	return c.id
}

// Send 处理一轮用户输入：先乐观追加用户消息，请求结束后追加助手回复（真实或降级），再应用分诊结论。
func (c *Conversation) Send(userText string) (TurnResult, error) {
	c.mu.Lock()
	if c.ended || c.state != model.StateOpen {
		c.mu.Unlock()
		return TurnResult{}, ErrConversationClosed
	}
	pending, err := c.exchange.Begin(userText)
	if err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	history := append([]model.ChatMessage(nil), c.messages...)
	c.messages = append(c.messages, model.ChatMessage{Role: model.RoleUser, Content: pending.Text(), Timestamp: c.now()})
	c.touch()
	optimistic := c.snapshotLocked()
	sessionID := c.session.ID
	c.mu.Unlock()
	c.notifyChange(optimistic)

	reply := pending.Do(c.ctx, sessionID, history)

	c.mu.Lock()
	c.messages = append(c.messages, model.ChatMessage{Role: model.RoleAssistant, Content: reply.Message, Timestamp: c.now()})
	completed := c.applyVerdict(reply)
	// 回复写入历史后才释放槽位，保证轮次不交叠
	pending.Done()
	c.touch()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifyChange(snap)
	if completed {
		log.Infow("[Conversation] 分诊完成", "conversationID", c.id, "sessionID", sessionID,
			"triageLevel", snap.TriageResult.TriageLevel, "escalated", snap.Escalated)
		if c.hooks.OnComplete != nil {
			c.hooks.OnComplete(snap)
		}
	}
	return TurnResult{Reply: reply.Message, Fallback: reply.Fallback, Completed: completed, Snapshot: snap}, nil
}

// applyVerdict 替换当前分诊结论并执行状态转移，返回是否发生了 OPEN -> COMPLETE。调用方须持锁。
func (c *Conversation) applyVerdict(reply ExchangeReply) bool {
	r := reply.TriageResult
	if r == nil {
		return false
	}
	c.result = r
	// 红旗信号强于 conversation_complete
	if r.RedFlagDetected {
		c.escalated = true
		c.providersRevealed = true
	}
	complete := r.RedFlagDetected || (reply.ConversationComplete != nil && *reply.ConversationComplete)
	if !complete || c.state != model.StateOpen {
		return false
	}
	c.state = model.StateComplete
	at := c.now()
	c.completedAt = &at
	return true
}

// RevealProviders 展开机构查询面板，仅在会话完成后可用。
func (c *Conversation) RevealProviders() (model.ConversationSnapshot, error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return model.ConversationSnapshot{}, ErrConversationClosed
	}
	if c.state == model.StateOpen {
		c.mu.Unlock()
		return model.ConversationSnapshot{}, ErrProvidersUnavailable
	}
	changed := !c.providersRevealed
	c.providersRevealed = true
	if changed {
		c.touch()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if changed {
		c.notifyChange(snap)
	}
	return snap, nil
}

// RequestProviders 查询附近机构。成功进入 PROVIDERS_SHOWN；失败停留在 PROVIDERS_REQUESTED 并记录可重试的错误文案。
func (c *Conversation) RequestProviders(loc model.Location) (model.ConversationSnapshot, error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return model.ConversationSnapshot{}, ErrConversationClosed
	}
	if c.state == model.StateOpen {
		c.mu.Unlock()
		return model.ConversationSnapshot{}, ErrProvidersUnavailable
	}
	pending, err := c.lookup.Begin(loc)
	if err != nil {
		c.mu.Unlock()
		return model.ConversationSnapshot{}, err
	}
	c.state = model.StateProvidersRequested
	c.providersRevealed = true
	c.lookupError = ""
	c.providers = []model.Provider{}
	c.touch()
	requested := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyChange(requested)

	providers, lookupErr := pending.Do(c.ctx)

	c.mu.Lock()
	if lookupErr != nil {
		c.lookupError = c.lookupErrorText
	} else {
		c.state = model.StateProvidersShown
		c.providers = providers
	}
	pending.Done()
	c.touch()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notifyChange(snap)

	if lookupErr != nil {
		return snap, lookupErr
	}
	return snap, nil
}

// Snapshot 返回当前状态的只读视图。
func (c *Conversation) Snapshot() model.ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// End 丢弃会话并取消在途调用，之后的 Send/RequestProviders 均被拒绝。
func (c *Conversation) End() model.ConversationSnapshot {
	c.mu.Lock()
	c.ended = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.cancel()
	return snap
}

// LastActivity 返回最近一次状态变化的时间。
func (c *Conversation) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

func (c *Conversation) touch() {
	c.updatedAt = c.now()
}

func (c *Conversation) notifyChange(snap model.ConversationSnapshot) {
	if c.hooks.OnChange != nil {
		c.hooks.OnChange(snap)
	}
}

func (c *Conversation) snapshotLocked() model.ConversationSnapshot {
	busy := c.exchange.Busy()
	pending := c.lookup.Pending()
	snap := model.ConversationSnapshot{
		ConversationID:          c.id,
		Session:                 c.session,
		Language:                c.language,
		DisclaimerAcknowledged:  c.disclaimerAcknowledged,
		State:                   c.state,
		Escalated:               c.escalated,
		Busy:                    busy,
		InputEnabled:            !c.ended && c.state == model.StateOpen && !busy,
		TriageResult:            c.result.Clone(),
		TriageSummaryVisible:    c.result != nil && c.state != model.StateOpen,
		ProviderLookupAvailable: !c.ended && c.state != model.StateOpen && !pending,
		ProvidersRevealed:       c.providersRevealed,
		LookupPending:           pending,
		LookupError:             c.lookupError,
		Providers:               append([]model.Provider{}, c.providers...),
		Messages:                append([]model.ChatMessage{}, c.messages...),
		UpdatedAt:               c.updatedAt,
	}
	if c.completedAt != nil {
		at := *c.completedAt
		snap.CompletedAt = &at
	}
	return snap
}
