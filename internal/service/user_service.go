package service

import (
	"context"
	"errors"
	"strings"

	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserService 身份映射与初期设定
type UserService struct {
	db       *gorm.DB
	logger   *zap.Logger
	userRepo *repository.UserRepository
	clubRepo *repository.ClubRepository
}

func NewUserService(db *gorm.DB, logger *zap.Logger) *UserService {
	return &UserService{
		db:       db,
		logger:   logger.Named("user"),
		userRepo: repository.NewUserRepository(db),
		clubRepo: repository.NewClubRepository(db),
	}
}

// Resolve 身份提供方 ID 对应的内部用户
func (s *UserService) Resolve(ctx context.Context, authUID string) (*model.User, error) {
	return resolveCaller(ctx, s.userRepo, s.logger, authUID)
}

// SetupInput 初期设定：选择已有部活动（ClubID），或登记新部活动（ClubName + TotalBudget）
type SetupInput struct {
	LastName    string
	FirstName   string
	ClubID      int64
	ClubName    string
	TotalBudget *int64
}

// Setup 已登记的用户只更新显示名
func (s *UserService) Setup(ctx context.Context, authUID string, in *SetupInput) (*model.User, error) {
	if strings.TrimSpace(authUID) == "" {
		return nil, apperr.Auth("認証エラー: ログインし直してください。")
	}

	lastName := strings.TrimSpace(in.LastName)
	firstName := strings.TrimSpace(in.FirstName)
	if lastName == "" || firstName == "" {
		return nil, apperr.Validation("姓と名を入力してください。")
	}
	displayName := lastName + " " + firstName

	existing, err := s.userRepo.GetByAuthUID(ctx, authUID)
	switch {
	case err == nil:
		if err := s.userRepo.UpdateDisplayName(ctx, existing.ID, displayName); err != nil {
			return nil, storageError(s.logger, "update_display_name", 0, err)
		}
		existing.DisplayName = displayName
		return existing, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, storageError(s.logger, "get_user", 0, err)
	}

	if in.ClubID > 0 {
		return s.joinClub(ctx, authUID, displayName, in.ClubID)
	}
	return s.registerClub(ctx, authUID, displayName, in)
}

func (s *UserService) joinClub(ctx context.Context, authUID, displayName string, clubID int64) (*model.User, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		if errors.Is(err, repository.ErrClubNotFound) {
			return nil, apperr.NotFound("部活動が見つかりません。")
		}
		return nil, storageError(s.logger, "get_club", 0, err)
	}

	user := &model.User{
		AuthUID:     authUID,
		ClubID:      club.ID,
		DisplayName: displayName,
		Role:        model.UserRoleMember,
	}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		return nil, storageError(s.logger, "create_user", 0, err)
	}

	s.logger.Info("用户加入部活动", zap.Int64("user_id", user.ID), zap.Int64("club_id", club.ID))
	return user, nil
}

func (s *UserService) registerClub(ctx context.Context, authUID, displayName string, in *SetupInput) (*model.User, error) {
	clubName := strings.TrimSpace(in.ClubName)
	if clubName == "" {
		return nil, apperr.Validation("部活動名を入力してください。")
	}
	if in.TotalBudget == nil || *in.TotalBudget < 0 {
		return nil, apperr.Validation("有効な予算額を入力してください。")
	}

	club := &model.Club{
		Name:        clubName,
		TotalBudget: decimal.NewFromInt(*in.TotalBudget),
	}
	user := &model.User{
		AuthUID:     authUID,
		DisplayName: displayName,
		Role:        model.UserRoleAdmin,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.clubRepo.Create(ctx, tx, club); err != nil {
			return err
		}
		user.ClubID = club.ID
		return s.userRepo.Create(ctx, tx, user)
	})
	if err != nil {
		return nil, storageError(s.logger, "register_club", 0, err)
	}

	s.logger.Info("部活动已登记", zap.Int64("club_id", club.ID), zap.String("name", club.Name))
	return user, nil
}

// ListClubs 初期设定时可选择的部活动
func (s *UserService) ListClubs(ctx context.Context) ([]*model.Club, error) {
	clubs, err := s.clubRepo.List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "list_clubs", 0, err)
	}
	return clubs, nil
}
