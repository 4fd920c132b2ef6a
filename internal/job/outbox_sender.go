package job

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/model"
)

// Publisher 消息投递
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxQueue 本地消息表的读写
type OutboxQueue interface {
	ListPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, maxRetry int) error
}

// OutboxSender 轮询本地消息表，把结算和提现事件投递到 Kafka
//
// 投递成功后才标记 SENT，进程在两步之间崩溃会导致重复投递，消费方按 message_key 去重
type OutboxSender struct {
	queue     OutboxQueue
	publisher Publisher
	logger    *slog.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	maxRetry  int
}

func NewOutboxSender(queue OutboxQueue, publisher Publisher, interval time.Duration, batchSize, maxRetry int) *OutboxSender {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &OutboxSender{
		queue:     queue,
		publisher: publisher,
		logger:    slog.Default().With("component", "outbox_sender"),
		stopCh:    make(chan struct{}),
		interval:  interval,
		batchSize: batchSize,
		maxRetry:  maxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 投递一批待发送消息，返回投递成功的条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.queue.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "查询待发送消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.queue.MarkSent(ctx, msg.ID); updateErr != nil {
			s.logger.ErrorContext(ctx, "更新消息状态失败", "id", msg.ID, "err", updateErr)
			return false
		}
		s.logger.DebugContext(ctx, "消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		return true
	}

	s.logger.WarnContext(ctx, "消息发送失败", "id", msg.ID, "topic", msg.Topic, "retry_count", msg.RetryCount, "err", err)
	if err := s.queue.RecordFailure(ctx, msg.ID, s.maxRetry); err != nil {
		s.logger.ErrorContext(ctx, "记录发送失败次数失败", "id", msg.ID, "err", err)
	}
	if msg.RetryCount+1 >= s.maxRetry {
		s.logger.ErrorContext(ctx, "消息超过最大重试次数，标记为失败", "id", msg.ID, "key", msg.MessageKey)
	}
	return false
}
