// Package aigateway AI 网关 API 处理器
package aigateway

import (
	"errors"
	"net/http"
	"strconv"

	"backend/api/handlers/common"
	"backend/internal/aicore"
	"backend/internal/middleware"
	"backend/pkg/aiinterface"

	"github.com/gin-gonic/gin"
)

// Handler 网关 API 处理器
type Handler struct {
	service       *aicore.Service
	conversations *aicore.ConversationStore
}

// NewHandler 创建处理器
func NewHandler(service *aicore.Service, conversations *aicore.ConversationStore) *Handler {
	return &Handler{service: service, conversations: conversations}
}

// ConversationResponse 对话历史响应
type ConversationResponse struct {
	Success        bool                  `json:"success"`
	ConversationID string                `json:"conversationId"`
	Messages       []aiinterface.Message `json:"messages"`
	Total          int                   `json:"total"`
}

// ProcessRequest 处理 AI 请求
// @Summary 执行 AI 请求
// @Tags AI-Gateway
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body aicore.GatewayRequest true "请求参数"
// @Success 200 {object} aicore.GatewayResponse
// @Failure 400 {object} common.ErrorResponse
// @Failure 402 {object} common.ErrorResponse
// @Failure 403 {object} common.ErrorResponse
// @Failure 429 {object} common.ErrorResponse
// @Failure 502 {object} common.ErrorResponse
// @Router /api/ai/request [post]
func (h *Handler) ProcessRequest(c *gin.Context) {
	var req aicore.GatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.Fail(err.Error()))
		return
	}
	req.PrincipalID = middleware.PrincipalID(c)

	resp, err := h.service.Process(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetConversation 获取对话历史
// @Summary 查询对话历史
// @Tags AI-Gateway
// @Security BearerAuth
// @Produce json
// @Param id path string true "对话 ID"
// @Success 200 {object} ConversationResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/ai/conversations/{id} [get]
func (h *Handler) GetConversation(c *gin.Context) {
	conversationID := c.Param("id")

	messages, err := h.conversations.Load(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail(err.Error()))
		return
	}

	c.JSON(http.StatusOK, ConversationResponse{
		Success:        true,
		ConversationID: conversationID,
		Messages:       messages,
		Total:          len(messages),
	})
}

// writeError 把网关错误映射到 HTTP 状态码和结构化响应体
func (h *Handler) writeError(c *gin.Context, err error) {
	var gwErr *aicore.GatewayError
	if !errors.As(err, &gwErr) {
		c.JSON(http.StatusInternalServerError, common.Fail("Interner Fehler"))
		return
	}

	body := common.ErrorResponse{
		Error: gwErr.Message,
		Kind:  string(gwErr.Kind),
	}

	var status int
	switch gwErr.Kind {
	case aicore.KindDisabled:
		status = http.StatusForbidden
	case aicore.KindBudgetExceeded:
		status = http.StatusPaymentRequired
		body.BudgetUsed = gwErr.BudgetUsed
		body.BudgetLimit = gwErr.BudgetLimit
	case aicore.KindRateLimited:
		status = http.StatusTooManyRequests
		body.RetryAfter = gwErr.RetryAfterSeconds
		c.Header("Retry-After", strconv.Itoa(gwErr.RetryAfterSeconds))
	case aicore.KindSubscriptionRequired:
		status = http.StatusForbidden
		body.RequiredSubscription = string(gwErr.RequiredTier)
	case aicore.KindProviderError:
		status = http.StatusBadGateway
		body.Stage = gwErr.Stage
	case aicore.KindInvalidRequest:
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, body)
}
