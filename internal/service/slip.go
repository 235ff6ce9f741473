package service

import (
	"clubexpense/internal/model"
	"clubexpense/pkg/money"
)

var statusLabels = map[string]string{
	model.RequestStatusDraft:     "下書き",
	model.RequestStatusSubmitted: "承認待ち",
	model.RequestStatusApproved:  "承認済み",
	model.RequestStatusRejected:  "差し戻し",
	model.RequestStatusPaid:      "支払済み",
}

// StatusLabel 状态的展示名称
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// ApprovalSlip 承认单的印刷内容
type ApprovalSlip struct {
	RequestNo       string      `json:"request_no"`
	ClubName        string      `json:"club_name"`
	Date            string      `json:"date"`
	JobTitle        string      `json:"job_title"`
	ApplicantName   string      `json:"applicant_name"`
	Category        string      `json:"category"`
	Reason          string      `json:"reason"`
	Payee           string      `json:"payee"`
	Status          string      `json:"status"`
	StatusLabel     string      `json:"status_label"`
	TotalText       string      `json:"total_text"`
	Items           []SlipItem  `json:"items"`
	Stamps          []SlipStamp `json:"stamps"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	RevisionNumber  int         `json:"revision_number"`
	ReceiptURL      string      `json:"receipt_url,omitempty"`
}

type SlipItem struct {
	ItemName      string `json:"item_name"`
	Quantity      string `json:"quantity"`
	UnitPriceText string `json:"unit_price_text"`
	AmountText    string `json:"amount_text"`
}

// SlipStamp 一个承认角色的印章栏，未承认时 Signed 为 false
type SlipStamp struct {
	Role     string `json:"role"`
	Name     string `json:"name"`
	DateText string `json:"date_text"`
	Signed   bool   `json:"signed"`
}

const unsignedStamp = "未承認"

// BuildApprovalSlip 印章栏按固定角色顺序排列，与承认顺序无关
func BuildApprovalSlip(view *RequestView) *ApprovalSlip {
	req := view.Request
	slip := &ApprovalSlip{
		RequestNo:      req.RequestNo,
		ClubName:       view.ClubName,
		Date:           req.Date,
		JobTitle:       req.JobTitle,
		ApplicantName:  req.ApplicantName,
		Category:       req.Category,
		Reason:         req.Reason,
		Payee:          req.Payee,
		Status:         req.Status,
		StatusLabel:    StatusLabel(req.Status),
		TotalText:      money.FormatYen(req.TotalAmount),
		RevisionNumber: req.RevisionNumber,
		ReceiptURL:     view.ReceiptURL,
	}
	if req.RejectionReason != nil {
		slip.RejectionReason = *req.RejectionReason
	}

	for _, item := range view.Items {
		slip.Items = append(slip.Items, SlipItem{
			ItemName:      item.ItemName,
			Quantity:      item.Quantity.String(),
			UnitPriceText: money.FormatYen(item.UnitPrice),
			AmountText:    money.FormatYen(item.Amount),
		})
	}

	flow := req.Flow()
	for _, role := range model.ApprovalRoles {
		stamp := SlipStamp{Role: role, Name: unsignedStamp}
		if entry, ok := flow.Entry(role); ok {
			stamp.Name = entry.Name
			stamp.DateText = entry.ApprovedAt.Format("06/01/02")
			stamp.Signed = true
		}
		slip.Stamps = append(slip.Stamps, stamp)
	}
	return slip
}
