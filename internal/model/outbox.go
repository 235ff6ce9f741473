package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 申请生命周期事件
const (
	EventRequestSubmitted   = "request.submitted"
	EventRequestApproval    = "request.approval_added"
	EventRequestApproved    = "request.approved"
	EventRequestRejected    = "request.rejected"
	EventRequestResubmitted = "request.resubmitted"
)

// OutboxMessage 与申请写入同一事务的待发送事件，由 OutboxSender 投递到 Kafka
type OutboxMessage struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey  string    `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType   string    `gorm:"type:varchar(64);not null" json:"event_type"`
	AggregateID int64     `gorm:"index;not null" json:"aggregate_id"`
	Topic       string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	Status      string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount  int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
