package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Enqueuer 任务投递端，实现网关的预算越线通知口径
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer 创建任务投递端
func NewEnqueuer(cfg config.RedisConfig) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NotifyBudgetCrossed 投递预算越线任务
// 请求路径上只做入队，通知/自动停用由 worker 异步处理
func (e *Enqueuer) NotifyBudgetCrossed(ctx context.Context, used, limit float64) error {
	payload, err := json.Marshal(tasks.BudgetExceededPayload{
		UsedEUR:  used,
		LimitEUR: limit,
		Month:    time.Now().UTC().Format("2006-01"),
	})
	if err != nil {
		return err
	}

	_, err = e.client.EnqueueContext(ctx,
		asynq.NewTask(tasks.TypeBudgetExceeded, payload),
		asynq.MaxRetry(5),
		asynq.Queue("default"))
	return err
}

// Close 关闭底层连接
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
