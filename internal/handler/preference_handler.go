package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"healthguide-go/internal/service"
	"healthguide-go/pkg/log"
)

// PreferenceHandler 处理客户端偏好的读取与更新。
type PreferenceHandler struct {
	preferenceService service.PreferenceService
}

// NewPreferenceHandler 创建一个新的 PreferenceHandler。
func NewPreferenceHandler(preferenceService service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferenceService: preferenceService}
}

// UpdatePreferenceRequest 中省略的字段保持原值。
type UpdatePreferenceRequest struct {
	Language               *string `json:"language"`
	DisclaimerAcknowledged *bool   `json:"disclaimer_acknowledged"`
}

func clientID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader("X-Client-ID"))
	if id == "" {
		fail(c, http.StatusBadRequest, "缺少 X-Client-ID 请求头", nil)
		return "", false
	}
	return id, true
}

// Get 返回当前客户端的偏好。
func (h *PreferenceHandler) Get(c *gin.Context) {
	id, present := clientID(c)
	if !present {
		return
	}
	pref, err := h.preferenceService.Get(c.Request.Context(), id)
	if err != nil {
		log.Error("GetPreference: Failed to load preference", err)
		fail(c, http.StatusInternalServerError, "获取偏好失败", nil)
		return
	}
	ok(c, pref)
}

// Update 更新当前客户端的偏好。
func (h *PreferenceHandler) Update(c *gin.Context) {
	id, present := clientID(c)
	if !present {
		return
	}
	var req UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	pref, err := h.preferenceService.Update(c.Request.Context(), id, req.Language, req.DisclaimerAcknowledged)
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("UpdatePreference: Failed to save preference", err)
		}
		fail(c, status, msg, nil)
		return
	}
	ok(c, pref)
}
