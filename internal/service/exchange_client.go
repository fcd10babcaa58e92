package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/triage"
)

// ExchangeBackend 是消息交换所需的远端能力。
type ExchangeBackend interface {
	Exchange(ctx context.Context, req triage.ExchangeRequest) (*triage.ExchangeResponse, error)
}

// inflightSlot 是容量为 1 的有界槽位：已占用时直接拒绝，不排队。
type inflightSlot chan struct{}

func newInflightSlot() inflightSlot {
	return make(inflightSlot, 1)
}

func (s inflightSlot) tryAcquire() bool {
	select {
	case s <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s inflightSlot) release() {
	select {
	case <-s:
	default:
	}
}

func (s inflightSlot) busy() bool {
	return len(s) > 0
}

// ExchangeReply 是一轮交换的结果。Fallback 为 true 时 Message 是本地生成的致歉文案。
type ExchangeReply struct {
	Message              string
	TriageResult         *model.TriageResult
	ConversationComplete *bool
	Fallback             bool
}

// ExchangeClient 负责与分诊服务交换一轮消息，同一时间最多一个在途请求。
type ExchangeClient struct {
	backend       ExchangeBackend
	timeout       time.Duration
	fallbackReply string
	slot          inflightSlot
}

// NewExchangeClient 创建一个新的 ExchangeClient。
func NewExchangeClient(backend ExchangeBackend, timeout time.Duration, fallbackReply string) *ExchangeClient {
	return &ExchangeClient{
		backend:       backend,
		timeout:       timeout,
		fallbackReply: fallbackReply,
		slot:          newInflightSlot(),
	}
}

// Busy 报告是否有在途交换。
func (c *ExchangeClient) Busy() bool {
	return c.slot.busy()
}

// PendingExchange 持有在途槽位，直到调用方在应用回复后调用 Done。
type PendingExchange struct {
	client  *ExchangeClient
	text    string
	release sync.Once
}

// Text 返回去除首尾空白后的用户输入。
func (p *PendingExchange) Text() string {
	return p.text
}

// Begin 校验输入并占用在途槽位。空白输入与忙碌状态下均不会发起网络请求。
func (c *ExchangeClient) Begin(userText string) (*PendingExchange, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.slot.tryAcquire() {
		return nil, ErrExchangeBusy
	}
	return &PendingExchange{client: c, text: text}, nil
}

// Done 释放在途槽位，可重复调用。
func (p *PendingExchange) Done() {
	p.release.Do(p.client.slot.release)
}

// Do 发起唯一的一次网络请求。失败（网络、状态码、解析）时返回降级回复，不返回错误。
// Do 不释放槽位：回复写入历史之前，新的一轮必须继续被拒绝。
func (p *PendingExchange) Do(ctx context.Context, sessionID string, history []model.ChatMessage) ExchangeReply {
	c := p.client
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		resp *triage.ExchangeResponse
		err  error
	)
	if c.backend == nil {
		err = errors.New("no triage backend configured")
	} else {
		resp, err = c.backend.Exchange(ctx, triage.ExchangeRequest{
			SessionID:           sessionID,
			Message:             p.text,
			ConversationHistory: model.StripTimestamps(history),
		})
	}
	if err != nil {
		log.Warnw("[ExchangeClient] 消息交换失败，返回降级回复", "sessionID", sessionID, "error", err)
		return ExchangeReply{Message: c.fallbackReply, Fallback: true}
	}

	reply := ExchangeReply{
		Message:      resp.Message,
		TriageResult: resp.TriageResult.Clone(),
	}
	if resp.ConversationComplete != nil {
		complete := *resp.ConversationComplete
		reply.ConversationComplete = &complete
	}
	return reply
}

// Send 是 Begin 与 Do 的组合，适用于不需要在请求前插入步骤的调用方。
func (c *ExchangeClient) Send(ctx context.Context, sessionID, userText string, history []model.ChatMessage) (ExchangeReply, error) {
	pending, err := c.Begin(userText)
	if err != nil {
		return ExchangeReply{}, err
	}
	defer pending.Done()
	return pending.Do(ctx, sessionID, history), nil
}
