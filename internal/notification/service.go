// Package notification 站内通知：落库 + 日志投递
package notification

import (
	"context"
	"time"

	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 通知级别
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification 站内通知，管理端展示
type Notification struct {
	ID        string     `json:"id" gorm:"primaryKey;type:uuid"`
	Kind      string     `json:"kind" gorm:"size:50;not null;index"`
	Severity  string     `json:"severity" gorm:"size:20;not null"`
	Title     string     `json:"title" gorm:"size:200;not null"`
	Body      string     `json:"body" gorm:"type:text"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// Service 通知服务
// 邮件/短信通道由外部系统轮询通知表投递，这里只负责落库
type Service struct {
	db *gorm.DB
}

// NewService 创建通知服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NotifyAdmins 给管理员发一条通知
func (s *Service) NotifyAdmins(ctx context.Context, kind, severity, title, body string) error {
	n := &Notification{
		ID:       uuid.New().String(),
		Kind:     kind,
		Severity: severity,
		Title:    title,
		Body:     body,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return err
	}

	logger.Info("管理员通知已创建",
		zap.String("kind", kind),
		zap.String("severity", severity),
		zap.String("title", title))
	return nil
}

// List 通知列表，未读在前
func (s *Service) List(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var notifications []Notification
	err := s.db.WithContext(ctx).
		Order("read_at IS NULL DESC, created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// MarkRead 标记已读
func (s *Service) MarkRead(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", now).Error
}

// AutoMigrate 自动迁移表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Notification{})
}
