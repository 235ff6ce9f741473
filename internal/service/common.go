package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/pkg/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlobStore 领收书文件存储
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// RequestLocker 串行化同一申请的状态变更，返回释放函数
type RequestLocker interface {
	Lock(ctx context.Context, requestID int64, owner string) (func(), error)
}

// RequestView 申请及其展示用的附加信息
type RequestView struct {
	*model.Request
	Items      []*model.RequestItem `json:"items,omitempty"`
	ClubName   string               `json:"club_name,omitempty"`
	ReceiptURL string               `json:"receipt_signed_url,omitempty"`
}

const unknownClubName = "不明"

// resolveCaller 把身份提供方的用户 ID 映射为内部用户
func resolveCaller(ctx context.Context, users *repository.UserRepository, logger *zap.Logger, authUID string) (*model.User, error) {
	if strings.TrimSpace(authUID) == "" {
		return nil, apperr.Auth("認証エラー: ログインし直してください。")
	}

	user, err := users.GetByAuthUID(ctx, authUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.Auth("ユーザー情報が見つかりません。初期設定を完了してください。")
		}
		return nil, storageError(logger, "resolve_user", 0, err)
	}
	return user, nil
}

func requireAdmin(user *model.User) error {
	if !user.CanAccessAdmin() {
		return apperr.Forbidden("管理画面へのアクセス権限がありません。")
	}
	return nil
}

// storageError 记录存储故障并包装为 StorageError
func storageError(logger *zap.Logger, op string, requestID int64, err error) error {
	logger.Error("存储操作失败",
		zap.String("op", op),
		zap.Int64("request_id", requestID),
		zap.Error(err),
	)
	return apperr.Storage(op, err)
}

// receiptSigner 为领收书生成限时地址，失败时返回空字符串
type receiptSigner struct {
	blobs  BlobStore
	ttl    time.Duration
	logger *zap.Logger
}

func (s *receiptSigner) URL(ctx context.Context, req *model.Request) string {
	if s.blobs == nil || req.ReceiptPath == nil || *req.ReceiptPath == "" {
		return ""
	}
	url, err := s.blobs.SignedURL(ctx, *req.ReceiptPath, s.ttl)
	if err != nil {
		s.logger.Warn("生成领收书地址失败",
			zap.Int64("request_id", req.ID),
			zap.String("path", *req.ReceiptPath),
			zap.Error(err),
		)
		return ""
	}
	return url
}

func clubNameOf(names map[int64]string, clubID int64) string {
	if name, ok := names[clubID]; ok && name != "" {
		return name
	}
	return unknownClubName
}

// requestViewer 组装带明细的申请详情
type requestViewer struct {
	itemRepo *repository.ItemRepository
	clubRepo *repository.ClubRepository
	signer   *receiptSigner
	logger   *zap.Logger
}

func newRequestViewer(db *gorm.DB, blobs BlobStore, cfg *config.Config, logger *zap.Logger) *requestViewer {
	return &requestViewer{
		itemRepo: repository.NewItemRepository(db),
		clubRepo: repository.NewClubRepository(db),
		signer: &receiptSigner{
			blobs:  blobs,
			ttl:    time.Duration(cfg.Business.ReceiptURLTTLSeconds) * time.Second,
			logger: logger,
		},
		logger: logger,
	}
}

func (v *requestViewer) detail(ctx context.Context, req *model.Request) (*RequestView, error) {
	items, err := v.itemRepo.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, storageError(v.logger, "list_items", req.ID, err)
	}

	clubName := unknownClubName
	club, err := v.clubRepo.GetByID(ctx, req.ClubID)
	switch {
	case err == nil:
		clubName = club.Name
	case !errors.Is(err, repository.ErrClubNotFound):
		return nil, storageError(v.logger, "get_club", req.ID, err)
	}

	return &RequestView{
		Request:    req,
		Items:      items,
		ClubName:   clubName,
		ReceiptURL: v.signer.URL(ctx, req),
	}, nil
}
