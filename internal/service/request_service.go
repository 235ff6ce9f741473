package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/infrastructure/lock"
	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/pkg/apperr"
	"clubexpense/pkg/idgen"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestService 支出申请的提交与审批流程
type RequestService struct {
	db          *gorm.DB
	cfg         *config.Config
	logger      *zap.Logger
	locker      RequestLocker
	requestRepo *repository.RequestRepository
	itemRepo    *repository.ItemRepository
	userRepo    *repository.UserRepository
	outboxRepo  *repository.OutboxRepository
	receipts    *receiptUploader
	viewer      *requestViewer
}

// NewRequestService locker 为 nil 时只依赖乐观锁
func NewRequestService(db *gorm.DB, blobs BlobStore, locker RequestLocker, cfg *config.Config, logger *zap.Logger) *RequestService {
	logger = logger.Named("request")
	return &RequestService{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		locker:      locker,
		requestRepo: repository.NewRequestRepository(db),
		itemRepo:    repository.NewItemRepository(db),
		userRepo:    repository.NewUserRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		receipts: &receiptUploader{
			blobs:    blobs,
			maxBytes: cfg.Business.MaxReceiptBytes,
			logger:   logger,
		},
		viewer: newRequestViewer(db, blobs, cfg, logger),
	}
}

// RequestDetails 申请的记载内容
type RequestDetails struct {
	Date          string
	JobTitle      string
	ApplicantName string
	Category      string
	Reason        string
	Payee         string
}

func (d RequestDetails) trimmed() RequestDetails {
	return RequestDetails{
		Date:          strings.TrimSpace(d.Date),
		JobTitle:      strings.TrimSpace(d.JobTitle),
		ApplicantName: strings.TrimSpace(d.ApplicantName),
		Category:      strings.TrimSpace(d.Category),
		Reason:        strings.TrimSpace(d.Reason),
		Payee:         strings.TrimSpace(d.Payee),
	}
}

func (d RequestDetails) validate() error {
	if d.Date == "" || d.JobTitle == "" || d.ApplicantName == "" {
		return apperr.Validation("記載日、職名、申請者氏名は必須です。")
	}
	return nil
}

func detailsOf(req *model.Request) RequestDetails {
	return RequestDetails{
		Date:          req.Date,
		JobTitle:      req.JobTitle,
		ApplicantName: req.ApplicantName,
		Category:      req.Category,
		Reason:        req.Reason,
		Payee:         req.Payee,
	}
}

// RequestPatch 再提出时的修改内容，nil 字段保持原值
type RequestPatch struct {
	Date          *string
	JobTitle      *string
	ApplicantName *string
	Category      *string
	Reason        *string
	Payee         *string
}

func (p RequestPatch) apply(d RequestDetails) RequestDetails {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.Date, p.Date)
	set(&d.JobTitle, p.JobTitle)
	set(&d.ApplicantName, p.ApplicantName)
	set(&d.Category, p.Category)
	set(&d.Reason, p.Reason)
	set(&d.Payee, p.Payee)
	return d
}

type CreateRequestInput struct {
	Details RequestDetails
	Items   []ItemInput
	Receipt *ReceiptUpload
}

// Create 提交新的申请，状态直接为 submitted
func (s *RequestService) Create(ctx context.Context, authUID string, in *CreateRequestInput) (*RequestView, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	details := in.Details.trimmed()
	if err := details.validate(); err != nil {
		return nil, err
	}

	items, total, err := NormalizeItems(in.Items)
	if err != nil {
		return nil, err
	}

	// 先上传领收书，失败时不写入申请
	receiptPath, err := s.receipts.Upload(ctx, caller.ClubID, 0, in.Receipt)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		RequestNo:      idgen.GenerateRequestNo(),
		ClubID:         caller.ClubID,
		UserID:         caller.ID,
		Date:           details.Date,
		JobTitle:       details.JobTitle,
		ApplicantName:  details.ApplicantName,
		Category:       details.Category,
		Reason:         details.Reason,
		Payee:          details.Payee,
		TotalAmount:    total,
		Status:         model.RequestStatusSubmitted,
		RevisionNumber: 1,
	}
	req.SetFlow(nil)
	if receiptPath != "" {
		req.ReceiptPath = &receiptPath
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requestRepo.Create(ctx, tx, req); err != nil {
			return err
		}
		if err := s.itemRepo.Replace(ctx, tx, req.ID, items); err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, s.newEvent(req, model.EventRequestSubmitted, nil))
	})
	if err != nil {
		return nil, storageError(s.logger, "create_request", req.ID, err)
	}

	s.logger.Info("申请已提交",
		zap.Int64("request_id", req.ID),
		zap.String("request_no", req.RequestNo),
		zap.Int64("club_id", req.ClubID),
		zap.String("total_amount", total.String()),
	)

	return &RequestView{Request: req, Items: items}, nil
}

// Get 申请详情，申请人所在部活动的成员与管理角色可查看
func (s *RequestService) Get(ctx context.Context, authUID string, requestID int64) (*RequestView, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller.ID && req.ClubID != caller.ClubID && !caller.CanAccessAdmin() {
		return nil, apperr.Forbidden("この申請を閲覧する権限がありません。")
	}

	return s.viewer.detail(ctx, req)
}

// Approve 以指定角色承认，五个角色全部承认后状态变为 approved
func (s *RequestService) Approve(ctx context.Context, authUID string, requestID int64, role, approverName string) (*model.Request, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	return s.applyChange(ctx, requestID, "approve_request", func(req *model.Request) (*requestChange, error) {
		if req.Status == model.RequestStatusRejected {
			return nil, apperr.InvalidTransition("差し戻し中の申請は承認できません。再提出をお待ちください。")
		}
		if !model.IsApprovalRole(role) {
			return nil, apperr.Validation("承認する役職が正しくありません。")
		}

		flow := req.Flow()
		if flow.Has(role) {
			return nil, apperr.DuplicateApproval(role)
		}
		if req.Status != model.RequestStatusSubmitted && req.Status != model.RequestStatusDraft {
			return nil, apperr.InvalidTransition("この申請は既に承認済みです。")
		}

		name := strings.TrimSpace(approverName)
		if name == "" {
			name = strings.TrimSpace(caller.DisplayName)
		}
		if name == "" {
			return nil, apperr.Validation("承認者名を入力してください。")
		}

		if s.cfg.Business.EnforceApproverRoles && caller.Role != model.UserRoleGlobalAdmin && caller.ApproverRole != role {
			return nil, apperr.Forbidden("この役職で承認する権限がありません。")
		}

		next := flow.Append(model.ApprovalEntry{Role: role, Name: name, ApprovedAt: time.Now()})
		change := &requestChange{
			updates: map[string]interface{}{
				"approval_flow": datatypes.NewJSONType(next),
			},
			event:   model.EventRequestApproval,
			payload: map[string]interface{}{"role": role, "name": name},
		}
		// 追加与状态变更在同一次更新中完成
		if next.Complete() {
			change.updates["status"] = model.RequestStatusApproved
			change.event = model.EventRequestApproved
		}
		return change, nil
	})
}

// Reject 差し戻し，承认记录保留
func (s *RequestService) Reject(ctx context.Context, authUID string, requestID int64, reason, rejectorName string) (*model.Request, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("差し戻し理由を入力してください。")
	}

	name := strings.TrimSpace(rejectorName)
	if name == "" {
		name = strings.TrimSpace(caller.DisplayName)
	}
	if name == "" {
		return nil, apperr.Validation("差し戻し者名を入力してください。")
	}

	return s.applyChange(ctx, requestID, "reject_request", func(req *model.Request) (*requestChange, error) {
		if req.Status != model.RequestStatusSubmitted && req.Status != model.RequestStatusDraft {
			return nil, apperr.InvalidTransition("承認待ちの申請のみ差し戻しできます。")
		}

		rejection := name + ": " + reason
		return &requestChange{
			updates: map[string]interface{}{
				"status":           model.RequestStatusRejected,
				"rejection_reason": rejection,
			},
			event:   model.EventRequestRejected,
			payload: map[string]interface{}{"name": name, "reason": reason},
		}, nil
	})
}

type ResubmitInput struct {
	Patch   RequestPatch
	Items   []ItemInput // nil 表示不修改明细
	Receipt *ReceiptUpload
}

// Resubmit 修改差し戻された申请并重新提交
func (s *RequestService) Resubmit(ctx context.Context, authUID string, requestID int64, in *ResubmitInput) (*RequestView, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	current, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkResubmittable(current, caller); err != nil {
		return nil, err
	}

	// 校验合并后的内容，再上传领收书
	if err := in.Patch.apply(detailsOf(current)).trimmed().validate(); err != nil {
		return nil, err
	}

	var items []*model.RequestItem
	var total = current.TotalAmount
	if in.Items != nil {
		if items, total, err = NormalizeItems(in.Items); err != nil {
			return nil, err
		}
	}

	receiptPath, err := s.receipts.Upload(ctx, caller.ClubID, requestID, in.Receipt)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyChange(ctx, requestID, "resubmit_request", func(req *model.Request) (*requestChange, error) {
		if err := checkResubmittable(req, caller); err != nil {
			return nil, err
		}

		details := in.Patch.apply(detailsOf(req)).trimmed()
		updates := map[string]interface{}{
			"date":             details.Date,
			"job_title":        details.JobTitle,
			"applicant_name":   details.ApplicantName,
			"category":         details.Category,
			"reason":           details.Reason,
			"payee":            details.Payee,
			"status":           model.RequestStatusSubmitted,
			"revision_number":  req.RevisionNumber + 1,
			"approval_flow":    datatypes.NewJSONType(model.ApprovalFlow{}),
			"rejection_reason": nil,
		}
		if items != nil {
			updates["total_amount"] = total
		}
		if receiptPath != "" {
			updates["receipt_url"] = receiptPath
		}

		return &requestChange{
			updates: updates,
			items:   items,
			event:   model.EventRequestResubmitted,
			payload: map[string]interface{}{"revision_number": req.RevisionNumber + 1},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return s.viewer.detail(ctx, updated)
}

func checkResubmittable(req *model.Request, caller *model.User) error {
	if req.UserID != caller.ID {
		return apperr.Forbidden("修正対象の申請が見つからないか、修正権限がありません。")
	}
	if req.Status != model.RequestStatusRejected {
		return apperr.InvalidTransition("差し戻された申請のみ再提出できます。")
	}
	return nil
}

// requestChange 一次状态变更，由 applyChange 在同一事务内写入
type requestChange struct {
	updates map[string]interface{}
	items   []*model.RequestItem
	event   string
	payload map[string]interface{}
}

// applyChange 读取 → 生成变更 → 条件更新，被并发修改时重新读取再试
func (s *RequestService) applyChange(ctx context.Context, requestID int64, op string, plan func(req *model.Request) (*requestChange, error)) (*model.Request, error) {
	unlock, err := s.lock(ctx, requestID)
	if errors.Is(err, lock.ErrLockFailed) {
		s.logger.Warn("申请锁被占用", zap.String("op", op), zap.Int64("request_id", requestID))
		return nil, apperr.StaleState("他の操作と競合しました。画面を更新して再度お試しください。")
	}
	if err != nil {
		return nil, storageError(s.logger, op, requestID, err)
	}
	defer unlock()

	attempts := s.cfg.Business.ApprovalRetry
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		req, err := s.load(ctx, requestID)
		if err != nil {
			return nil, err
		}

		change, err := plan(req)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.requestRepo.ConditionalUpdate(ctx, tx, req, change.updates); err != nil {
				return err
			}
			if change.items != nil {
				if err := s.itemRepo.Replace(ctx, tx, req.ID, change.items); err != nil {
					return err
				}
			}
			return s.outboxRepo.Create(ctx, tx, s.newEvent(req, change.event, change.payload))
		})

		switch {
		case err == nil:
			updated, err := s.requestRepo.GetByID(ctx, requestID)
			if err != nil {
				return nil, storageError(s.logger, op, requestID, err)
			}
			s.logger.Info("申请状态已更新",
				zap.String("op", op),
				zap.Int64("request_id", requestID),
				zap.String("status", updated.Status),
				zap.Int("approvals", len(updated.Flow())),
			)
			return updated, nil
		case errors.Is(err, repository.ErrStaleState):
			s.logger.Debug("申请已被并发修改，重新读取", zap.String("op", op), zap.Int64("request_id", requestID), zap.Int("attempt", i+1))
			continue
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, apperr.InvalidTransition("この申請は現在の状態では操作できません。")
		default:
			return nil, storageError(s.logger, op, requestID, err)
		}
	}

	return nil, apperr.StaleState("他の操作と競合しました。画面を更新して再度お試しください。")
}

func (s *RequestService) lock(ctx context.Context, requestID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, requestID, uuid.NewString())
}

func (s *RequestService) load(ctx context.Context, requestID int64) (*model.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, apperr.NotFound("申請が見つかりません。")
		}
		return nil, storageError(s.logger, "get_request", requestID, err)
	}
	return req, nil
}

// newEvent 与申请写入同一事务的事件，按申请编号分区
func (s *RequestService) newEvent(req *model.Request, eventType string, extra map[string]interface{}) *model.OutboxMessage {
	payload := map[string]interface{}{
		"event":       eventType,
		"request_id":  req.ID,
		"request_no":  req.RequestNo,
		"club_id":     req.ClubID,
		"occurred_at": time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	payloadBytes, _ := json.Marshal(payload)

	return &model.OutboxMessage{
		MessageKey:  req.RequestNo,
		EventType:   eventType,
		AggregateID: req.ID,
		Topic:       s.cfg.Kafka.Topic.RequestEvents,
		Payload:     string(payloadBytes),
		Status:      model.OutboxStatusPending,
	}
}
