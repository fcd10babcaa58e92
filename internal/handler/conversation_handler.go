package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"healthguide-go/internal/middleware"
	"healthguide-go/internal/model"
	"healthguide-go/internal/service"
	"healthguide-go/pkg/log"
)

// ConversationHandler 处理与分诊会话相关的 REST 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// StartConversationRequest 定义了开始会话的请求体，字段均可省略。
type StartConversationRequest struct {
	Language               string `json:"language"`
	DisclaimerAcknowledged *bool  `json:"disclaimer_acknowledged"`
}

// SendMessageRequest 定义了发送消息的请求体。
type SendMessageRequest struct {
	Message string `json:"message"`
}

// TurnResponse 是一轮对话的响应。
type TurnResponse struct {
	Reply     string                     `json:"reply"`
	Fallback  bool                       `json:"fallback"`
	Completed bool                       `json:"completed"`
	Snapshot  model.ConversationSnapshot `json:"snapshot"`
}

// Start 开始一个新的会话并返回访问令牌。
func (h *ConversationHandler) Start(c *gin.Context) {
	var req StartConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warnf("Start: Invalid request payload, error: %v", err)
			fail(c, http.StatusBadRequest, "无效的请求负载", nil)
			return
		}
	}

	res, err := h.service.Start(c.Request.Context(), service.StartOptions{
		ClientID:               strings.TrimSpace(c.GetHeader("X-Client-ID")),
		Language:               req.Language,
		DisclaimerAcknowledged: req.DisclaimerAcknowledged,
	})
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("Start: Failed to start conversation", err)
		}
		fail(c, status, msg, nil)
		return
	}
	ok(c, res)
}

// ListMine 列出会话令牌所属客户端发起过的会话 ID。匿名会话返回空列表。
func (h *ConversationHandler) ListMine(c *gin.Context) {
	ids, err := h.service.ListClientConversations(c.Request.Context(), c.GetString(middleware.ClientIDKey))
	if err != nil {
		log.Error("ListMine: Failed to list conversations", err)
		fail(c, http.StatusInternalServerError, "获取会话列表失败", nil)
		return
	}
	ok(c, ids)
}

// Get 返回当前会话的快照。
func (h *ConversationHandler) Get(c *gin.Context) {
	snap, err := h.service.Get(c.Request.Context(), c.GetString(middleware.ConversationIDKey))
	if err != nil {
		status, msg := errorStatus(err)
		fail(c, status, msg, nil)
		return
	}
	ok(c, snap)
}

// SendMessage 发送一条用户消息并等待助手回复。被拒绝时返回当前快照，会话状态不变。
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}

	id := c.GetString(middleware.ConversationIDKey)
	res, err := h.service.Send(c.Request.Context(), id, req.Message)
	if err != nil {
		h.reject(c, id, err)
		return
	}
	ok(c, TurnResponse{Reply: res.Reply, Fallback: res.Fallback, Completed: res.Completed, Snapshot: res.Snapshot})
}

// RequestProviders 查询附近的医疗机构。查询失败时返回 502 及带有错误文案的快照，可直接重试。
func (h *ConversationHandler) RequestProviders(c *gin.Context) {
	var loc model.Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}

	id := c.GetString(middleware.ConversationIDKey)
	snap, err := h.service.RequestProviders(c.Request.Context(), id, loc)
	if err != nil {
		if !service.IsRejection(err) && snap.ConversationID != "" {
			status, _ := errorStatus(err)
			fail(c, status, snap.LookupError, snap)
			return
		}
		h.reject(c, id, err)
		return
	}
	ok(c, snap)
}

// RevealProviders 展开机构查询面板。
func (h *ConversationHandler) RevealProviders(c *gin.Context) {
	id := c.GetString(middleware.ConversationIDKey)
	snap, err := h.service.RevealProviders(c.Request.Context(), id)
	if err != nil {
		h.reject(c, id, err)
		return
	}
	ok(c, snap)
}

// End 结束会话。
func (h *ConversationHandler) End(c *gin.Context) {
	snap, err := h.service.End(c.Request.Context(), c.GetString(middleware.ConversationIDKey))
	if err != nil {
		status, msg := errorStatus(err)
		fail(c, status, msg, nil)
		return
	}
	ok(c, snap)
}

// reject 返回错误并附带当前快照，便于前端保持一致的渲染。
func (h *ConversationHandler) reject(c *gin.Context, conversationID string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("会话操作失败: conversationID=%s, error=%v", conversationID, err)
	}
	var data interface{}
	if snap, getErr := h.service.Get(c.Request.Context(), conversationID); getErr == nil {
		data = snap
	}
	fail(c, status, msg, data)
}
