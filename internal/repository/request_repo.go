package repository

import (
	"context"
	"errors"

	"clubexpense/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRequestNotFound   = errors.New("申请不存在")
	ErrStaleState        = errors.New("申请已被其他操作修改")
	ErrInvalidTransition = errors.New("申请状态不允许该操作")
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *RequestRepository) Create(ctx context.Context, tx *gorm.DB, req *model.Request) error {
	return r.conn(tx).WithContext(ctx).Create(req).Error
}

func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*model.Request, error) {
	var req model.Request
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ConditionalUpdate 以 id + 当前状态 + 版本号为条件更新，版本号自增
// 未命中任何行说明已被并发修改，返回 ErrStaleState
func (r *RequestRepository) ConditionalUpdate(ctx context.Context, tx *gorm.DB, current *model.Request, updates map[string]interface{}) error {
	if to, ok := updates["status"].(string); ok && to != current.Status && !model.CanTransitionTo(current.Status, to) {
		return ErrInvalidTransition
	}

	updates["version"] = gorm.Expr("version + 1")

	result := r.conn(tx).WithContext(ctx).
		Model(&model.Request{}).
		Where("id = ? AND status = ? AND version = ?", current.ID, current.Status, current.Version).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleState
	}

	return nil
}

// ListByClub 部活动的申请履历，按申请时间倒序
func (r *RequestRepository) ListByClub(ctx context.Context, clubID int64, limit int) ([]*model.Request, error) {
	var requests []*model.Request
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

// ListSpentByClub 计入预算消耗的申请（approved / paid）
func (r *RequestRepository) ListSpentByClub(ctx context.Context, clubID int64) ([]*model.Request, error) {
	var requests []*model.Request
	err := r.db.WithContext(ctx).
		Select("id", "club_id", "status", "category", "total_amount", "date", "created_at").
		Where("club_id = ? AND status IN ?", clubID, model.SpentStatuses).
		Find(&requests).Error
	return requests, err
}

// ListSpent 所有部活动计入预算消耗的申请
func (r *RequestRepository) ListSpent(ctx context.Context) ([]*model.Request, error) {
	var requests []*model.Request
	err := r.db.WithContext(ctx).
		Select("id", "club_id", "status", "total_amount").
		Where("status IN ?", model.SpentStatuses).
		Find(&requests).Error
	return requests, err
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status string) ([]*model.Request, error) {
	var requests []*model.Request
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Order("id DESC").
		Find(&requests).Error
	return requests, err
}

// ListRecent 最近的申请，用于横断检索
func (r *RequestRepository) ListRecent(ctx context.Context, limit int) ([]*model.Request, error) {
	var requests []*model.Request
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}
