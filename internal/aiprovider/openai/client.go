package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"backend/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

const providerName = "openai"

// Client OpenAI 客户端适配器
type Client struct {
	client *openai.Client
}

// NewClient 创建 OpenAI 客户端
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeAuth, 0, "OpenAI API Key 不能为空", nil)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Complete 执行一次补全调用
// OpenAI 没有显式的缓存块语法，系统块拼成一条 system 消息；
// 命中的缓存 token 从 prompt_tokens_details 取
func (c *Client) Complete(ctx context.Context, req *aiinterface.CompletionRequest) (*aiinterface.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if len(req.System) > 0 {
		parts := make([]string, 0, len(req.System))
		for _, blk := range req.System {
			parts = append(parts, blk.Text)
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(parts, "\n\n"),
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeServer, 0, "API 返回空响应", nil)
	}

	var cacheRead int
	if resp.Usage.PromptTokensDetails != nil {
		cacheRead = resp.Usage.PromptTokensDetails.CachedTokens
	}

	// prompt_tokens 本身已含缓存命中部分，符合归一口径
	return &aiinterface.CompletionResponse{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		Provider:   providerName,
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: aiinterface.TokenUsage{
			InputTokens:     resp.Usage.PromptTokens,
			OutputTokens:    resp.Usage.CompletionTokens,
			CacheReadTokens: cacheRead,
		},
	}, nil
}

// Name 返回提供商标识
func (c *Client) Name() string {
	return providerName
}

// wrapError 把 go-openai 的错误映射到统一错误类型
func wrapError(err error) *aiinterface.ClientError {
	if errors.Is(err, context.DeadlineExceeded) {
		return aiinterface.NewClientError(providerName, aiinterface.ErrTypeTimeout, 0, "请求超时", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		var errType string
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			errType = aiinterface.ErrTypeAuth
		case 429:
			errType = aiinterface.ErrTypeRateLimit
		case 400:
			errType = aiinterface.ErrTypeBadRequest
		default:
			errType = aiinterface.ErrTypeServer
		}
		return aiinterface.NewClientError(providerName, errType, apiErr.HTTPStatusCode,
			"OpenAI API 错误: "+apiErr.Message, err)
	}

	return aiinterface.NewClientError(providerName, aiinterface.ErrTypeNetwork, 0, "请求失败", err)
}
