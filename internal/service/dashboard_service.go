package service

import (
	"context"
	"errors"

	"clubexpense/internal/config"
	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/pkg/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DashboardService 成员首页：预算消耗与申请履历
type DashboardService struct {
	cfg         *config.Config
	logger      *zap.Logger
	requestRepo *repository.RequestRepository
	clubRepo    *repository.ClubRepository
	userRepo    *repository.UserRepository
	viewer      *requestViewer
}

func NewDashboardService(db *gorm.DB, blobs BlobStore, cfg *config.Config, logger *zap.Logger) *DashboardService {
	logger = logger.Named("dashboard")
	return &DashboardService{
		cfg:         cfg,
		logger:      logger,
		requestRepo: repository.NewRequestRepository(db),
		clubRepo:    repository.NewClubRepository(db),
		userRepo:    repository.NewUserRepository(db),
		viewer:      newRequestViewer(db, blobs, cfg, logger),
	}
}

type Dashboard struct {
	User    *model.User    `json:"user"`
	Club    *model.Club    `json:"club"`
	Usage   BudgetUsage    `json:"usage"`
	History []*RequestView `json:"history"`
}

func (s *DashboardService) Dashboard(ctx context.Context, authUID string, filter HistoryFilter) (*Dashboard, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}

	club, err := s.clubRepo.GetByID(ctx, caller.ClubID)
	if err != nil {
		if errors.Is(err, repository.ErrClubNotFound) {
			return nil, apperr.NotFound("部活動が見つかりません。")
		}
		return nil, storageError(s.logger, "get_club", 0, err)
	}

	spent, err := s.requestRepo.ListSpentByClub(ctx, club.ID)
	if err != nil {
		return nil, storageError(s.logger, "list_spent", 0, err)
	}

	recent, err := s.requestRepo.ListByClub(ctx, club.ID, s.cfg.Business.HistoryLimit)
	if err != nil {
		return nil, storageError(s.logger, "list_history", 0, err)
	}

	history := make([]*RequestView, 0, len(recent))
	for _, req := range FilterHistory(recent, filter) {
		history = append(history, &RequestView{
			Request:    req,
			ClubName:   club.Name,
			ReceiptURL: s.viewer.signer.URL(ctx, req),
		})
	}

	return &Dashboard{
		User:    caller,
		Club:    club,
		Usage:   ComputeUsage(club.TotalBudget, SumSpent(spent)),
		History: history,
	}, nil
}
