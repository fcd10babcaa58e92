// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"healthguide-go/internal/service"
)

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// errorStatus 把业务错误映射为 HTTP 状态码与提示文案。
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest, "消息不能为空"
	case errors.Is(err, service.ErrInvalidLocation):
		return http.StatusBadRequest, "无效的位置"
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "不支持的语言"
	case errors.Is(err, service.ErrExchangeBusy):
		return http.StatusConflict, "上一条消息仍在处理中"
	case errors.Is(err, service.ErrLookupPending):
		return http.StatusConflict, "机构查询仍在进行中"
	case errors.Is(err, service.ErrConversationClosed):
		return http.StatusConflict, "会话已结束"
	case errors.Is(err, service.ErrProvidersUnavailable):
		return http.StatusConflict, "会话完成后才能查询机构"
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrOutcomeNotFound):
		return http.StatusNotFound, "记录不存在"
	case errors.Is(err, service.ErrLookupFailed):
		return http.StatusBadGateway, "机构查询失败，请稍后重试"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}
