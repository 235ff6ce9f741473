package service

import (
	"context"
	"errors"

	"clubexpense/internal/config"
	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminService 管理画面使用的查询，仅管理角色可用
// 仅 global_admin / approver / advisor 可访问
type AdminService struct {
	cfg         *config.Config
	logger      *zap.Logger
	requestRepo *repository.RequestRepository
	clubRepo    *repository.ClubRepository
	userRepo    *repository.UserRepository
	viewer      *requestViewer
}

func NewAdminService(db *gorm.DB, blobs BlobStore, cfg *config.Config, logger *zap.Logger) *AdminService {
	logger = logger.Named("admin")
	return &AdminService{
		cfg:         cfg,
		logger:      logger,
		requestRepo: repository.NewRequestRepository(db),
		clubRepo:    repository.NewClubRepository(db),
		userRepo:    repository.NewUserRepository(db),
		viewer:      newRequestViewer(db, blobs, cfg, logger),
	}
}

func (s *AdminService) authorize(ctx context.Context, authUID string) (*model.User, error) {
	caller, err := resolveCaller(ctx, s.userRepo, s.logger, authUID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return caller, nil
}

type ClubUsage struct {
	*model.Club
	Usage BudgetUsage `json:"usage"`
}

// ClubOverview 每个部活动的预算消耗，按名称排序
func (s *AdminService) ClubOverview(ctx context.Context, authUID string) ([]ClubUsage, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}

	clubs, err := s.clubRepo.List(ctx)
	if err != nil {
		return nil, storageError(s.logger, "list_clubs", 0, err)
	}

	spentRequests, err := s.requestRepo.ListSpent(ctx)
	if err != nil {
		return nil, storageError(s.logger, "list_spent", 0, err)
	}

	spentByClub := make(map[int64]decimal.Decimal)
	for _, r := range spentRequests {
		spentByClub[r.ClubID] = spentByClub[r.ClubID].Add(r.TotalAmount)
	}

	result := make([]ClubUsage, 0, len(clubs))
	for _, club := range clubs {
		result = append(result, ClubUsage{
			Club:  club,
			Usage: ComputeUsage(club.TotalBudget, spentByClub[club.ID]),
		})
	}
	return result, nil
}

// PendingRequests 决裁待ち的申请，新的在前
func (s *AdminService) PendingRequests(ctx context.Context, authUID string) ([]*RequestView, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}

	pending, err := s.requestRepo.ListByStatus(ctx, model.RequestStatusSubmitted)
	if err != nil {
		return nil, storageError(s.logger, "list_pending", 0, err)
	}

	names, err := s.clubRepo.NameMap(ctx)
	if err != nil {
		return nil, storageError(s.logger, "list_clubs", 0, err)
	}

	result := make([]*RequestView, 0, len(pending))
	for _, req := range pending {
		result = append(result, &RequestView{
			Request:    req,
			ClubName:   clubNameOf(names, req.ClubID),
			ReceiptURL: s.viewer.signer.URL(ctx, req),
		})
	}
	return result, nil
}

// Search 在最近的 search_limit 条申请中检索
func (s *AdminService) Search(ctx context.Context, authUID string, filter SearchFilter) ([]*RequestView, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}
	return s.search(ctx, filter)
}

func (s *AdminService) search(ctx context.Context, filter SearchFilter) ([]*RequestView, error) {
	recent, err := s.requestRepo.ListRecent(ctx, s.cfg.Business.SearchLimit)
	if err != nil {
		return nil, storageError(s.logger, "search_requests", 0, err)
	}

	names, err := s.clubRepo.NameMap(ctx)
	if err != nil {
		return nil, storageError(s.logger, "list_clubs", 0, err)
	}

	matched := FilterSearch(recent, names, filter)
	result := make([]*RequestView, 0, len(matched))
	for _, req := range matched {
		result = append(result, &RequestView{Request: req, ClubName: clubNameOf(names, req.ClubID)})
	}
	return result, nil
}

// ExportSearch 检索结果导出为 xlsx
func (s *AdminService) ExportSearch(ctx context.Context, authUID string, filter SearchFilter) ([]byte, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}

	rows, err := s.search(ctx, filter)
	if err != nil {
		return nil, err
	}

	data, err := WriteRequestsXLSX(rows)
	if err != nil {
		return nil, storageError(s.logger, "export_requests", 0, err)
	}
	return data, nil
}

type ClubDetail struct {
	Club       *model.Club     `json:"club"`
	Usage      BudgetUsage     `json:"usage"`
	Categories []CategoryTotal `json:"categories"`
	Months     []MonthTotal    `json:"months"`
}

// ClubDetail 单个部活动的预算消耗与分类、月度合计
func (s *AdminService) ClubDetail(ctx context.Context, authUID string, clubID int64) (*ClubDetail, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}

	club, err := s.clubRepo.GetByID(ctx, clubID)
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

	return &ClubDetail{
		Club:       club,
		Usage:      ComputeUsage(club.TotalBudget, SumSpent(spent)),
		Categories: CategoryBreakdown(spent),
		Months:     MonthlyBreakdown(spent),
	}, nil
}

// RequestDetail 申请详情（含明细与领收书地址）
func (s *AdminService) RequestDetail(ctx context.Context, authUID string, requestID int64) (*RequestView, error) {
	if _, err := s.authorize(ctx, authUID); err != nil {
		return nil, err
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.viewer.detail(ctx, req)
}

// ApprovalSlip 可印刷的承认单
func (s *AdminService) ApprovalSlip(ctx context.Context, authUID string, requestID int64) (*ApprovalSlip, error) {
	view, err := s.RequestDetail(ctx, authUID, requestID)
	if err != nil {
		return nil, err
	}
	return BuildApprovalSlip(view), nil
}

func (s *AdminService) load(ctx context.Context, requestID int64) (*model.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, apperr.NotFound("申請が見つかりません。")
		}
		return nil, storageError(s.logger, "get_request", requestID, err)
	}
	return req, nil
}
