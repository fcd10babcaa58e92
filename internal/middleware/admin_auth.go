package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"healthguide-go/pkg/hash"
)

// AdminAuthMiddleware 校验 X-Admin-Token 请求头与配置的 bcrypt 哈希是否匹配。
// 未配置哈希时管理接口一律拒绝。
func AdminAuthMiddleware(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Token")
		if key == "" || !hash.CheckPasswordHash(key, tokenHash) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要管理员权限", "data": nil})
			return
		}
		c.Next()
	}
}
