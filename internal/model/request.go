package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RequestStatusDraft     = "draft"
	RequestStatusSubmitted = "submitted"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusPaid      = "paid"
)

// ValidStatusTransitions 申请状态流转表
// draft 不由本服务产生，但允许其直接进入审批或被退回
// approved -> paid 由外部付款登记完成
var ValidStatusTransitions = map[string][]string{
	RequestStatusDraft:     {RequestStatusApproved, RequestStatusRejected},
	RequestStatusSubmitted: {RequestStatusApproved, RequestStatusRejected},
	RequestStatusRejected:  {RequestStatusSubmitted},
	RequestStatusApproved:  {RequestStatusPaid},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsValidStatus 判断是否为已知的状态值
func IsValidStatus(status string) bool {
	switch status {
	case RequestStatusDraft, RequestStatusSubmitted, RequestStatusApproved, RequestStatusRejected, RequestStatusPaid:
		return true
	}
	return false
}

// SpentStatuses 计入预算消耗的状态
var SpentStatuses = []string{RequestStatusApproved, RequestStatusPaid}

// Request 支出申请（ks_requests）
type Request struct {
	ID              int64                            `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo       string                           `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	ClubID          int64                            `gorm:"index;not null" json:"club_id"`
	UserID          int64                            `gorm:"index;not null" json:"user_id"`
	Date            string                           `gorm:"type:varchar(10);not null" json:"date"`
	JobTitle        string                           `gorm:"type:varchar(64);not null" json:"job_title"`
	ApplicantName   string                           `gorm:"type:varchar(64);not null" json:"applicant_name"`
	Category        string                           `gorm:"type:varchar(64);not null;default:''" json:"category"`
	Reason          string                           `gorm:"type:text" json:"reason"`
	Payee           string                           `gorm:"type:varchar(128);not null;default:''" json:"payee"`
	TotalAmount     decimal.Decimal                  `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	Status          string                           `gorm:"type:varchar(20);index;not null" json:"status"`
	ApprovalFlow    datatypes.JSONType[ApprovalFlow] `gorm:"not null" json:"approval_flow"`
	RejectionReason *string                          `gorm:"type:text" json:"rejection_reason"`
	RevisionNumber  int                              `gorm:"not null;default:1" json:"revision_number"`
	ReceiptPath     *string                          `gorm:"column:receipt_url;type:varchar(512)" json:"receipt_url"`
	Version         int                              `gorm:"not null;default:0" json:"-"`                               // 乐观锁版本号
	CreatedAt       time.Time                        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt                   `gorm:"index" json:"-"`
}

func (Request) TableName() string {
	return "ks_requests"
}

// Flow 返回当前承认记录（总是非 nil）
func (r *Request) Flow() ApprovalFlow {
	flow := r.ApprovalFlow.Data()
	if flow == nil {
		return ApprovalFlow{}
	}
	return flow
}

// SetFlow 替换承认记录
func (r *Request) SetFlow(flow ApprovalFlow) {
	if flow == nil {
		flow = ApprovalFlow{}
	}
	r.ApprovalFlow = datatypes.NewJSONType(flow)
}

// RequestItem 申请明细（ks_request_items）
// Amount 始终等于 Quantity × UnitPrice
type RequestItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID int64           `gorm:"index;not null" json:"request_id"`
	ItemName  string          `gorm:"type:varchar(255);not null" json:"item_name"`
	Quantity  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"`
	Amount    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	SortOrder int             `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (RequestItem) TableName() string {
	return "ks_request_items"
}
