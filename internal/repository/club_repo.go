package repository

import (
	"context"
	"errors"

	"clubexpense/internal/model"

	"gorm.io/gorm"
)

var (
	ErrClubNotFound = errors.New("部活动不存在")
)

type ClubRepository struct {
	db *gorm.DB
}

func NewClubRepository(db *gorm.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

func (r *ClubRepository) Create(ctx context.Context, tx *gorm.DB, club *model.Club) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(club).Error
}

func (r *ClubRepository) GetByID(ctx context.Context, id int64) (*model.Club, error) {
	var club model.Club
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&club).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClubNotFound
		}
		return nil, err
	}
	return &club, nil
}

// List 未删除的部活动，按名称排序
func (r *ClubRepository) List(ctx context.Context) ([]*model.Club, error) {
	var clubs []*model.Club
	err := r.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&clubs).Error
	return clubs, err
}

// NameMap 部活动 ID 到名称的映射（含已删除之外的全部）
func (r *ClubRepository) NameMap(ctx context.Context) (map[int64]string, error) {
	clubs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(clubs))
	for _, c := range clubs {
		names[c.ID] = c.Name
	}
	return names, nil
}
