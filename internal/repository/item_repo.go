package repository

import (
	"context"

	"clubexpense/internal/model"

	"gorm.io/gorm"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Replace 整体替换申请的明细：先删除旧明细，再插入新明细
func (r *ItemRepository) Replace(ctx context.Context, tx *gorm.DB, requestID int64, items []*model.RequestItem) error {
	if tx == nil {
		tx = r.db
	}

	if err := tx.WithContext(ctx).Where("request_id = ?", requestID).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		item.ID = 0
		item.RequestID = requestID
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *ItemRepository) ListByRequest(ctx context.Context, requestID int64) ([]*model.RequestItem, error) {
	var items []*model.RequestItem
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("sort_order ASC").
		Find(&items).Error
	return items, err
}
