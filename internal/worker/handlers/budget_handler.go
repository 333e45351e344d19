// Package handlers 后台任务处理器
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/notification"
	"backend/internal/settings"
	"backend/internal/worker/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BudgetEvent 预算越线审计记录，与用量账本分开存放
type BudgetEvent struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid"`
	Month        string         `json:"month" gorm:"size:7;not null;index"`
	UsedEUR      float64        `json:"usedEur" gorm:"type:decimal(10,2);not null"`
	LimitEUR     float64        `json:"limitEur" gorm:"type:decimal(10,2);not null"`
	AutoDisabled bool           `json:"autoDisabled" gorm:"not null"`
	Payload      datatypes.JSON `json:"payload"` // 原始任务载荷，排查用
	CreatedAt    time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (BudgetEvent) TableName() string {
	return "ai_budget_events"
}

// featureDisabler 功能批量停用口径
type featureDisabler interface {
	DisableAll(ctx context.Context) (int64, error)
}

// BudgetHandler 预算越线任务处理器
// 越线后：落审计记录、通知管理员、按设置自动停用 AI 功能
type BudgetHandler struct {
	db            *gorm.DB
	settings      *settings.Service
	features      featureDisabler
	notifications *notification.Service
	logger        *zap.Logger
}

// NewBudgetHandler 创建预算任务处理器
func NewBudgetHandler(db *gorm.DB, settingsSvc *settings.Service, features featureDisabler, notifications *notification.Service, logger *zap.Logger) *BudgetHandler {
	return &BudgetHandler{
		db:            db,
		settings:      settingsSvc,
		features:      features,
		notifications: notifications,
		logger:        logger,
	}
}

// HandleBudgetExceeded 处理预算越线任务
func (h *BudgetHandler) HandleBudgetExceeded(ctx context.Context, task *asynq.Task) error {
	var payload tasks.BudgetExceededPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %w", err)
	}

	cfg, err := h.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("读取全局设置失败: %w", err)
	}

	autoDisabled := false
	if cfg.AutoDisableOnBudget {
		count, err := h.features.DisableAll(ctx)
		if err != nil {
			return fmt.Errorf("自动停用功能失败: %w", err)
		}
		autoDisabled = count > 0
		h.logger.Warn("预算耗尽，AI 功能已自动停用", zap.Int64("disabled_count", count))
	}

	event := &BudgetEvent{
		ID:           uuid.New().String(),
		Month:        payload.Month,
		UsedEUR:      payload.UsedEUR,
		LimitEUR:     payload.LimitEUR,
		AutoDisabled: autoDisabled,
		Payload:      datatypes.JSON(task.Payload()),
	}
	if err := h.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("写入预算审计记录失败: %w", err)
	}

	body := fmt.Sprintf("Das monatliche AI-Budget (%.2f EUR) wurde überschritten. Aktueller Verbrauch: %.2f EUR.",
		payload.LimitEUR, payload.UsedEUR)
	if autoDisabled {
		body += " Alle AI-Funktionen wurden automatisch deaktiviert."
	}
	if err := h.notifications.NotifyAdmins(ctx, "ai_budget_exceeded", notification.SeverityCritical,
		"AI-Budget überschritten", body); err != nil {
		return fmt.Errorf("创建管理员通知失败: %w", err)
	}

	h.logger.Info("预算越线任务处理完成",
		zap.String("month", payload.Month),
		zap.Float64("used_eur", payload.UsedEUR),
		zap.Bool("auto_disabled", autoDisabled))
	return nil
}
