package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"clubexpense/pkg/apperr"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// ReceiptUpload 上传的领收书文件
type ReceiptUpload struct {
	FileName string
	Data     []byte
}

var receiptContentTypes = []string{"image/jpeg", "image/png", "application/pdf"}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

const thumbnailWidth = 200

// SanitizeFileName 文件名中 [a-zA-Z0-9._-] 以外的字符替换为 _
func SanitizeFileName(name string) string {
	if name == "" {
		return "receipt"
	}
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ReceiptPath 存储路径：{club_id}/{unix_millis}_{文件名}
func ReceiptPath(clubID int64, fileName string, now time.Time) string {
	return fmt.Sprintf("%d/%d_%s", clubID, now.UnixMilli(), SanitizeFileName(fileName))
}

// ThumbnailPath 图片领收书缩略图的存储路径
func ThumbnailPath(path string) string {
	return "thumbs/" + path + ".jpg"
}

type receiptUploader struct {
	blobs    BlobStore
	maxBytes int64
	logger   *zap.Logger
}

// Upload 校验并上传领收书，没有文件时返回空路径
func (u *receiptUploader) Upload(ctx context.Context, clubID, requestID int64, up *ReceiptUpload) (string, error) {
	if up == nil || len(up.Data) == 0 {
		return "", nil
	}
	if u.maxBytes > 0 && int64(len(up.Data)) > u.maxBytes {
		return "", apperr.Validation("領収書のファイルサイズが大きすぎます。")
	}

	mtype := mimetype.Detect(up.Data)
	contentType := ""
	for _, t := range receiptContentTypes {
		if mtype.Is(t) {
			contentType = t
			break
		}
	}
	if contentType == "" {
		return "", apperr.Validation("領収書は JPEG・PNG・PDF のいずれかを選択してください。")
	}

	if u.blobs == nil {
		return "", storageError(u.logger, "upload_receipt", requestID, errors.New("blob store not configured"))
	}

	path := ReceiptPath(clubID, up.FileName, time.Now())
	if err := u.blobs.Put(ctx, path, bytes.NewReader(up.Data), int64(len(up.Data)), contentType); err != nil {
		return "", storageError(u.logger, "upload_receipt", requestID, err)
	}

	if contentType != "application/pdf" {
		u.thumbnail(ctx, path, up.Data)
	}
	return path, nil
}

// thumbnail 缩略图失败只记录日志
func (u *receiptUploader) thumbnail(ctx context.Context, path string, data []byte) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		u.logger.Warn("解析领收书图片失败", zap.String("path", path), zap.Error(err))
		return
	}

	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		u.logger.Warn("生成缩略图失败", zap.String("path", path), zap.Error(err))
		return
	}

	if err := u.blobs.Put(ctx, ThumbnailPath(path), &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		u.logger.Warn("上传缩略图失败", zap.String("path", path), zap.Error(err))
	}
}
