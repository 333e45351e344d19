// Package common API 层共用的响应结构
package common

// APIResponse 通用成功/失败响应
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Total   int         `json:"total,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse 网关拒绝响应，按错误类别携带结构化附加字段
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`

	// budget_exceeded
	BudgetUsed  float64 `json:"budgetUsed,omitempty"`
	BudgetLimit float64 `json:"budgetLimit,omitempty"`

	// rate_limited
	RetryAfter int `json:"retryAfter,omitempty"`

	// subscription_required
	RequiredSubscription string `json:"requiredSubscription,omitempty"`

	// provider_error
	Stage string `json:"stage,omitempty"`
}

// OK 成功响应
func OK(data interface{}) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// OKList 带总数的列表响应
func OKList(data interface{}, total int) APIResponse {
	return APIResponse{Success: true, Data: data, Total: total}
}

// Fail 简单错误响应
func Fail(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}
