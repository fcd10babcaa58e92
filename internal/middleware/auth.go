// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"healthguide-go/pkg/token"
)

const (
	// ConversationIDKey 是上下文中保存会话 ID 的键。
	ConversationIDKey = "conversationID"
	// ClientIDKey 是上下文中保存令牌所属客户端 ID 的键，匿名会话为空。
	ClientIDKey = "clientID"
)

// ConversationAuth 创建一个 Gin 中间件，校验会话令牌并把会话 ID 存入上下文。
func ConversationAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(ConversationIDKey, claims.ConversationID)
		c.Set(ClientIDKey, claims.ClientID)
		c.Set("claims", claims)
		c.Next()
	}
}
