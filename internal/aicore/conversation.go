package aicore

import (
	"context"
	"sync"
	"time"

	"backend/pkg/aiinterface"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"gorm.io/gorm"
)

// ConversationTurn 对话轮次，按 (conversation_id, sequence) 有序
// 只追加，历史轮次不改写，保证可缓存前缀稳定
type ConversationTurn struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ConversationID string    `json:"conversationId" gorm:"size:100;not null;index:idx_conv_seq,priority:1"`
	Sequence       int       `json:"sequence" gorm:"not null;index:idx_conv_seq,priority:2"`
	Role           string    `json:"role" gorm:"size:20;not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ConversationTurn) TableName() string {
	return "ai_conversation_turns"
}

// ConversationStore 对话历史存取
type ConversationStore struct {
	db        *gorm.DB
	maxTurns  int
	maxTokens int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewConversationStore 创建对话历史存取器
// maxTurns / maxTokens 约束历史前缀的规模，控制 prompt 体积
func NewConversationStore(db *gorm.DB, maxTurns, maxTokens int) *ConversationStore {
	return &ConversationStore{db: db, maxTurns: maxTurns, maxTokens: maxTokens}
}

// Load 加载对话历史，返回按时间升序的最近若干轮
// conversationID 为空或无历史时返回空切片
func (s *ConversationStore) Load(ctx context.Context, conversationID string) ([]aiinterface.Message, error) {
	if conversationID == "" {
		return nil, nil
	}

	var turns []ConversationTurn
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence DESC").
		Limit(s.maxTurns).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	// 倒序取最近 N 轮，再翻回时间升序
	messages := make([]aiinterface.Message, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, aiinterface.Message{
			Role:    turns[i].Role,
			Content: turns[i].Content,
		})
	}
	return s.trimToTokenBudget(messages), nil
}

// Append 成功调用后追加新一轮对话，conversationID 为空时不做任何事
func (s *ConversationStore) Append(ctx context.Context, conversationID, prompt, response string) error {
	if conversationID == "" {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		err := tx.Model(&ConversationTurn{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return err
		}

		turns := []ConversationTurn{
			{
				ID:             uuid.New().String(),
				ConversationID: conversationID,
				Sequence:       maxSeq + 1,
				Role:           aiinterface.RoleUser,
				Content:        prompt,
			},
			{
				ID:             uuid.New().String(),
				ConversationID: conversationID,
				Sequence:       maxSeq + 2,
				Role:           aiinterface.RoleAssistant,
				Content:        response,
			},
		}
		return tx.Create(&turns).Error
	})
}

// trimToTokenBudget 从最旧的轮次开始裁剪，直到历史在 token 预算内
func (s *ConversationStore) trimToTokenBudget(messages []aiinterface.Message) []aiinterface.Message {
	if s.maxTokens <= 0 {
		return messages
	}
	for len(messages) > 0 {
		total := 0
		for _, msg := range messages {
			total += s.countTokens(msg.Content)
		}
		if total <= s.maxTokens {
			return messages
		}
		messages = messages[1:]
	}
	return messages
}

// countTokens 估算文本 token 数，编码器不可用时按 4 字符 1 token 估算
func (s *ConversationStore) countTokens(text string) int {
	s.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			s.enc = enc
		}
	})
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

// AutoMigrate 自动迁移表结构
func (s *ConversationStore) AutoMigrate() error {
	return s.db.AutoMigrate(&ConversationTurn{})
}
