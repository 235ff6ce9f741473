package job

import (
	"context"
	"time"

	"clubexpense/internal/model"
	"clubexpense/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher 事件投递目标，生产环境为 Kafka
type EventPublisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender 定时把 outbox 表中的待发送事件投递出去
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  EventPublisher
	logger     *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher EventPublisher, maxRetry int, logger *zap.Logger) *OutboxSender {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		logger:     logger.Named("outbox"),
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
		maxRetry:   maxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("事件发送任务启动")

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

// ProcessPending 发送一批待发送事件，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询待发送事件失败", zap.Error(err))
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
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新事件状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return false
		}
		s.logger.Debug("事件发送成功",
			zap.Int64("id", msg.ID),
			zap.String("event", msg.EventType),
			zap.String("key", msg.MessageKey),
		)
		return true
	}

	s.logger.Warn("事件发送失败", zap.Int64("id", msg.ID), zap.Int("retry_count", msg.RetryCount), zap.Error(err))

	exhausted, recordErr := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetry)
	if recordErr != nil {
		s.logger.Error("记录发送失败次数失败", zap.Int64("id", msg.ID), zap.Error(recordErr))
		return false
	}
	if exhausted {
		s.logger.Error("事件超过最大重试次数，标记为失败", zap.Int64("id", msg.ID), zap.String("event", msg.EventType))
	}
	return false
}
