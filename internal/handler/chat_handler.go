package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"healthguide-go/internal/model"
	"healthguide-go/internal/service"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

const wsWriteTimeout = 10 * time.Second

// ChatHandler 负责处理会话的 WebSocket 连接：接收用户操作，推送会话快照。
type ChatHandler struct {
	conversationService service.ConversationService
	jwtManager          *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(conversationService service.ConversationService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{conversationService: conversationService, jwtManager: jwtManager}
}

// clientFrame 是客户端发送的帧：message / providers / reveal。
type clientFrame struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Location *model.Location `json:"location,omitempty"`
}

// serverFrame 是服务端推送的帧：snapshot / rejected。
type serverFrame struct {
	Type   string                      `json:"type"`
	Data   *model.ConversationSnapshot `json:"data,omitempty"`
	Reason string                      `json:"reason,omitempty"`
}

// wsConn 串行化对同一连接的写入。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeFrame(frame serverFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	conversationID := claims.ConversationID

	updates, unsubscribe, err := h.conversationService.Subscribe(conversationID)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"code": status, "message": msg, "data": nil})
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	log.Infof("WebSocket 连接已建立，会话: %s", conversationID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if snap, err := h.conversationService.Get(ctx, conversationID); err == nil {
		_ = ws.writeFrame(serverFrame{Type: "snapshot", Data: &snap})
	}

	// 推送协程：会话结束时订阅通道被关闭
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, open := <-updates:
				if !open {
					ws.mu.Lock()
					_ = ws.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended"),
						time.Now().Add(wsWriteTimeout))
					ws.mu.Unlock()
					_ = conn.Close()
					return
				}
				if err := ws.writeFrame(serverFrame{Type: "snapshot", Data: &snap}); err != nil {
					log.Warnf("推送会话快照失败: %v", err)
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			_ = ws.writeFrame(serverFrame{Type: "rejected", Reason: "invalid frame"})
			continue
		}
		// 操作异步执行，在途期间的后续操作会被单槽位拒绝而不是排队
		go h.dispatch(ctx, ws, conversationID, frame)
	}
	log.Infof("WebSocket 连接已关闭，会话: %s", conversationID)
}

// dispatch 执行一个客户端操作。成功的结果通过快照订阅推送，这里只回写拒绝原因。
func (h *ChatHandler) dispatch(ctx context.Context, ws *wsConn, conversationID string, frame clientFrame) {
	var err error
	switch frame.Type {
	case "message":
		_, err = h.conversationService.Send(ctx, conversationID, frame.Content)
	case "providers":
		if frame.Location == nil {
			err = service.ErrInvalidLocation
			break
		}
		_, err = h.conversationService.RequestProviders(ctx, conversationID, *frame.Location)
	case "reveal":
		_, err = h.conversationService.RevealProviders(ctx, conversationID)
	default:
		_ = ws.writeFrame(serverFrame{Type: "rejected", Reason: "unknown frame type"})
		return
	}
	// 机构查询失败已体现在快照的 lookup_error 中
	if err == nil || errors.Is(err, service.ErrLookupFailed) {
		return
	}
	_, reason := errorStatus(err)
	_ = ws.writeFrame(serverFrame{Type: "rejected", Reason: reason})
}
