package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"backend/pkg/aiinterface"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	providerName   = "anthropic"
)

// Client Anthropic Claude 客户端适配器
// 直接走 /v1/messages HTTP 接口，支持 prompt caching
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 Anthropic 客户端
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeAuth, 0, "Anthropic API Key 不能为空", nil)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// anthropicRequest /v1/messages 请求体
type anthropicRequest struct {
	Model       string             `json:"model"`
	System      []systemBlock      `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

// systemBlock 系统提示词块，带 cache_control 时提供商会缓存前缀
type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse /v1/messages 响应体
type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Content    []anthropicContent `json:"content"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicUsage 原始用量字段
// input_tokens 不含缓存命中部分，归一时要加回去
type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete 执行一次补全调用
func (c *Client) Complete(ctx context.Context, req *aiinterface.CompletionRequest) (*aiinterface.CompletionResponse, error) {
	system := make([]systemBlock, 0, len(req.System))
	for _, blk := range req.System {
		sb := systemBlock{Type: "text", Text: blk.Text}
		if blk.CacheControl {
			sb.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		system = append(system, sb)
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeBadRequest, 0, "序列化请求失败", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeNetwork, 0, "创建请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeTimeout, 0, "请求超时", err)
		}
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeNetwork, 0, "请求失败", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeNetwork, 0, "读取响应失败", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, parseError(httpResp.StatusCode, respBody)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, aiinterface.NewClientError(providerName, aiinterface.ErrTypeServer, 0, "解析响应失败", err)
	}

	var content string
	for _, blk := range resp.Content {
		if blk.Type == "text" {
			content += blk.Text
		}
	}

	// 归一口径：InputTokens 为完整输入，含缓存命中部分
	return &aiinterface.CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		Provider:   providerName,
		StopReason: resp.StopReason,
		Usage: aiinterface.TokenUsage{
			InputTokens:      resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
		},
	}, nil
}

// Name 返回提供商标识
func (c *Client) Name() string {
	return providerName
}

// parseError 按状态码解析错误类型
func parseError(statusCode int, body []byte) *aiinterface.ClientError {
	message := string(body)
	var errBody anthropicErrorBody
	if json.Unmarshal(body, &errBody) == nil && errBody.Error.Message != "" {
		message = errBody.Error.Message
	}

	var errType string
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = aiinterface.ErrTypeAuth
	case http.StatusTooManyRequests:
		errType = aiinterface.ErrTypeRateLimit
	case http.StatusBadRequest:
		errType = aiinterface.ErrTypeBadRequest
	case 529:
		errType = aiinterface.ErrTypeOverloaded
	default:
		errType = aiinterface.ErrTypeServer
	}

	return aiinterface.NewClientError(providerName, errType, statusCode,
		fmt.Sprintf("Anthropic API 错误: %s", message), nil)
}
