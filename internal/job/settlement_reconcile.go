package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/service"
)

// SettlementReconciler 结算补偿
type SettlementReconciler interface {
	PendingReconciliation(ctx context.Context, before time.Time, limit int) ([]*model.Order, error)
	Reconcile(ctx context.Context, orderNo string) (*service.SettledOrder, error)
}

// SettlementReconcileJob 定时补偿结算未完成的订单
//
// 覆盖两种情况：
// 1. 事务B失败，订单已标记为 partial
// 2. 事务A提交后进程崩溃，订单停留在 pending
// 只处理创建超过 after 的订单，避免和正在进行的下单请求抢同一个订单
type SettlementReconcileJob struct {
	reconciler SettlementReconciler
	logger     *slog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	after      time.Duration
	batchSize  int
	nowFn      func() time.Time
}

func NewSettlementReconcileJob(reconciler SettlementReconciler, interval, after time.Duration, batchSize int) *SettlementReconcileJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if after <= 0 {
		after = 2 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SettlementReconcileJob{
		reconciler: reconciler,
		logger:     slog.Default().With("component", "settlement_reconcile"),
		stopCh:     make(chan struct{}),
		interval:   interval,
		after:      after,
		batchSize:  batchSize,
		nowFn:      time.Now,
	}
}

func (j *SettlementReconcileJob) Start(ctx context.Context) {
	j.logger.Info("结算补偿任务启动", "interval", j.interval.String(), "after", j.after.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *SettlementReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 补偿一批订单，返回补偿成功的条数
func (j *SettlementReconcileJob) RunOnce(ctx context.Context) int {
	orders, err := j.reconciler.PendingReconciliation(ctx, j.nowFn().Add(-j.after), j.batchSize)
	if err != nil {
		j.logger.ErrorContext(ctx, "查询待补偿订单失败", "err", err)
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	j.logger.InfoContext(ctx, "发现待补偿订单", "count", len(orders))

	done := 0
	for _, order := range orders {
		_, err := j.reconciler.Reconcile(ctx, order.OrderNo)
		switch {
		case err == nil:
			done++
		case errors.Is(err, service.ErrAlreadySettled):
			// 其他实例已经补偿过
		default:
			j.logger.WarnContext(ctx, "订单补偿失败，等待下一轮",
				"order_no", order.OrderNo, "settlement_status", order.SettlementStatus, "err", err)
		}
	}

	j.logger.InfoContext(ctx, "本轮补偿完成", "reconciled", done, "total", len(orders))
	return done
}
