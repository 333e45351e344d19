// Package aiadmin AI 网关管理端 API
package aiadmin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"backend/api/handlers/common"
	"backend/internal/aicore"
	"backend/internal/feature"
	"backend/internal/middleware"
	"backend/internal/notification"
	"backend/internal/settings"

	"github.com/gin-gonic/gin"
)

// Handler 管理端处理器
type Handler struct {
	settings      *settings.Service
	features      *feature.Service
	ledger        *aicore.Ledger
	notifications *notification.Service
}

// NewHandler 创建管理端处理器
func NewHandler(settingsSvc *settings.Service, features *feature.Service, ledger *aicore.Ledger, notifications *notification.Service) *Handler {
	return &Handler{
		settings:      settingsSvc,
		features:      features,
		ledger:        ledger,
		notifications: notifications,
	}
}

// UsageStatsData 用量统计响应数据
type UsageStatsData struct {
	Total           *aicore.UsageStats         `json:"total"`
	ByFeature       []aicore.FeatureUsageStats `json:"byFeature"`
	MonthToDateCost float64                    `json:"monthToDateCost"`
}

// ========== 全局设置 ==========

// GetSettings 读取全局 AI 设置
// @Summary 查询全局 AI 设置
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=settings.GlobalAISettings}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OK(s))
}

// UpdateSettings 更新全局 AI 设置
// @Summary 更新全局 AI 设置
// @Tags AI-Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body settings.UpdateSettingsRequest true "设置项"
// @Success 200 {object} common.APIResponse{data=settings.GlobalAISettings}
// @Failure 400 {object} common.ErrorResponse
// @Router /api/admin/ai/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settings.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail(err.Error()))
		return
	}

	s, err := h.settings.Update(c.Request.Context(), middleware.PrincipalID(c), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OK(s))
}

// ========== 功能配置 ==========

// ListFeatures 列出功能配置
// @Summary 查询功能配置列表
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]feature.FeatureConfig}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/features [get]
func (h *Handler) ListFeatures(c *gin.Context) {
	configs, err := h.features.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OKList(configs, len(configs)))
}

// CreateFeature 创建功能配置
// @Summary 创建功能配置
// @Tags AI-Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body feature.CreateFeatureConfigRequest true "功能配置"
// @Success 201 {object} common.APIResponse{data=feature.FeatureConfig}
// @Failure 400 {object} common.ErrorResponse
// @Failure 409 {object} common.ErrorResponse
// @Router /api/admin/ai/features [post]
func (h *Handler) CreateFeature(c *gin.Context) {
	var req feature.CreateFeatureConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail(err.Error()))
		return
	}

	cfg, err := h.features.Create(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feature.ErrDuplicateKey) {
			status = http.StatusConflict
		}
		c.JSON(status, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, common.OK(cfg))
}

// UpdateFeature 更新功能配置
// @Summary 更新功能配置
// @Tags AI-Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param key path string true "功能键"
// @Param request body feature.UpdateFeatureConfigRequest true "功能配置"
// @Success 200 {object} common.APIResponse{data=feature.FeatureConfig}
// @Failure 404 {object} common.ErrorResponse
// @Router /api/admin/ai/features/{key} [put]
func (h *Handler) UpdateFeature(c *gin.Context) {
	var req feature.UpdateFeatureConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail(err.Error()))
		return
	}

	cfg, err := h.features.Update(c.Request.Context(), c.Param("key"), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feature.ErrFeatureNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OK(cfg))
}

// DeleteFeature 删除功能配置
// @Summary 删除功能配置
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param key path string true "功能键"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/admin/ai/features/{key} [delete]
func (h *Handler) DeleteFeature(c *gin.Context) {
	if err := h.features.Delete(c.Request.Context(), c.Param("key")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feature.ErrFeatureNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.APIResponse{Success: true})
}

// ========== 系统提示词 ==========

// ListPrompts 列出系统提示词
// @Summary 查询系统提示词列表
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]feature.SystemPrompt}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/prompts [get]
func (h *Handler) ListPrompts(c *gin.Context) {
	prompts, err := h.features.ListPrompts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OKList(prompts, len(prompts)))
}

// UpsertPrompt 创建或更新系统提示词
// @Summary 创建或更新系统提示词
// @Tags AI-Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body feature.UpsertPromptRequest true "提示词"
// @Success 200 {object} common.APIResponse{data=feature.SystemPrompt}
// @Failure 400 {object} common.ErrorResponse
// @Router /api/admin/ai/prompts [put]
func (h *Handler) UpsertPrompt(c *gin.Context) {
	var req feature.UpsertPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail(err.Error()))
		return
	}

	prompt, err := h.features.UpsertPrompt(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OK(prompt))
}

// DeletePrompt 删除系统提示词
// @Summary 删除系统提示词
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param key path string true "提示词键"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/admin/ai/prompts/{key} [delete]
func (h *Handler) DeletePrompt(c *gin.Context) {
	if err := h.features.DeletePrompt(c.Request.Context(), c.Param("key")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feature.ErrPromptNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.APIResponse{Success: true})
}

// ========== 用量统计 ==========

// GetUsageStats 用量统计
// @Summary 查询用量统计
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param days query int false "统计天数 (默认 30)"
// @Success 200 {object} common.APIResponse{data=UsageStatsData}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/usage [get]
func (h *Handler) GetUsageStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 || days > 365 {
		days = 30
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -days)
	ctx := c.Request.Context()

	stats, err := h.ledger.Stats(ctx, from, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	byFeature, err := h.ledger.StatsByFeature(ctx, from, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	monthToDate, err := h.ledger.MonthToDateCost(ctx, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}

	c.JSON(http.StatusOK, common.OK(UsageStatsData{
		Total:           stats,
		ByFeature:       byFeature,
		MonthToDateCost: monthToDate,
	}))
}

// ListLedgerEntries 最近账本条目
// @Summary 查询最近账本条目
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "条数上限 (默认 100)"
// @Success 200 {object} common.APIResponse{data=[]aicore.UsageLedgerEntry}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/ledger [get]
func (h *Handler) ListLedgerEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.ledger.RecentEntries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OKList(entries, len(entries)))
}

// ========== 通知 ==========

// ListNotifications 通知列表
// @Summary 查询管理员通知
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param limit query int false "条数上限 (默认 50)"
// @Success 200 {object} common.APIResponse{data=[]notification.Notification}
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.notifications.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.OKList(notifications, len(notifications)))
}

// MarkNotificationRead 标记通知已读
// @Summary 标记通知已读
// @Tags AI-Admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "通知 ID"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/admin/ai/notifications/{id}/read [post]
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, common.APIResponse{Success: true})
}
