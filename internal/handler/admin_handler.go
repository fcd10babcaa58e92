package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"healthguide-go/internal/model"
	"healthguide-go/internal/service"
	"healthguide-go/pkg/log"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListOutcomes 处理分页获取分诊结果列表的请求。
func (h *AdminHandler) ListOutcomes(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	filter := model.OutcomeFilter{
		TriageLevel: strings.TrimSpace(c.Query("triage_level")),
		Limit:       size,
		Offset:      (page - 1) * size,
	}
	if escalatedStr := c.Query("escalated"); escalatedStr != "" {
		escalated, err := strconv.ParseBool(escalatedStr)
		if err != nil {
			fail(c, http.StatusBadRequest, "无效的 escalated 参数", nil)
			return
		}
		filter.Escalated = &escalated
	}

	res, err := h.adminService.ListOutcomes(c.Request.Context(), filter)
	if err != nil {
		log.Error("ListOutcomes: Failed to list outcomes", err)
		fail(c, http.StatusInternalServerError, "获取分诊结果列表失败", nil)
		return
	}
	ok(c, res)
}

// SearchOutcomes 在检索索引中全文搜索分诊结果。
func (h *AdminHandler) SearchOutcomes(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, "缺少查询参数 q", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	if size <= 0 || size > 100 {
		size = 10
	}

	hits, err := h.adminService.SearchOutcomes(c.Request.Context(), query, strings.TrimSpace(c.Query("level")), size)
	if err != nil {
		log.Error("SearchOutcomes: Failed to search outcomes", err)
		fail(c, http.StatusInternalServerError, "搜索分诊结果失败", nil)
		return
	}
	ok(c, hits)
}

// TranscriptURL 返回会话记录的下载链接。
func (h *AdminHandler) TranscriptURL(c *gin.Context) {
	url, err := h.adminService.TranscriptURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("TranscriptURL: Failed to generate url", err)
		}
		fail(c, status, msg, nil)
		return
	}
	ok(c, gin.H{"url": url})
}
