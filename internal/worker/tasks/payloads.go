package tasks

// 任务类型
const (
	TypeBudgetExceeded = "ai:budget_exceeded"
)

// BudgetExceededPayload 预算越线任务载荷
type BudgetExceededPayload struct {
	UsedEUR  float64 `json:"used_eur"`
	LimitEUR float64 `json:"limit_eur"`
	Month    string  `json:"month"`
}
