package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"clubexpense/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore 领收书文件存储
type MinioStore struct {
	client *minio.Client
	bucket string
}

// InitMinio 连接 MinIO 并确保 bucket 存在，未启用时返回 nil
func InitMinio(cfg *config.StorageConfig) *MinioStore {
	if !cfg.Enabled {
		log.Println("领收书存储未启用，上传领收书将失败")
		return nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("创建 MinIO 客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		log.Fatalf("检查 bucket 失败: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			log.Fatalf("创建 bucket 失败: %v", err)
		}
	}

	log.Printf("MinIO 连接成功: bucket=%s", cfg.Bucket)
	return &MinioStore{client: client, bucket: cfg.Bucket}
}

// Put 上传对象，路径已存在时覆盖
func (s *MinioStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=3600",
	})
	if err != nil {
		return fmt.Errorf("上传文件失败: %w", err)
	}
	return nil
}

// SignedURL 生成限时下载地址
func (s *MinioStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("生成签名地址失败: %w", err)
	}
	return u.String(), nil
}
