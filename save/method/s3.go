package method

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sinspired/clash-butler/config"
)

// S3Uploader 上传到 S3 兼容的对象存储
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// ValiS3Config 验证 S3 配置
func ValiS3Config(cfg *config.Config) error {
	if cfg.S3Endpoint == "" {
		return fmt.Errorf("s3 endpoint未配置")
	}
	if cfg.S3AccessID == "" || cfg.S3SecretKey == "" {
		return fmt.Errorf("s3 密钥未配置")
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("s3 bucket未配置")
	}
	return nil
}

// NewS3Uploader 创建 S3 上传器，endpoint 可以带协议头
func NewS3Uploader(cfg *config.Config) (*S3Uploader, error) {
	endpoint := cfg.S3Endpoint
	secure := cfg.S3UseSSL
	if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, secure = after, true
	} else if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, secure = after, false
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.S3AccessID, cfg.S3SecretKey, ""),
		Secure:       secure,
		BucketLookup: bucketLookup(cfg.S3BucketLookup),
	})
	if err != nil {
		return nil, fmt.Errorf("创建 s3 客户端失败: %w", err)
	}
	return &S3Uploader{client: client, bucket: cfg.S3Bucket}, nil
}

func bucketLookup(s string) minio.BucketLookupType {
	switch strings.ToLower(s) {
	case "path":
		return minio.BucketLookupPath
	case "dns":
		return minio.BucketLookupDNS
	}
	return minio.BucketLookupAuto
}

// Save 上传单个文件，bucket 不存在时创建
func (s *S3Uploader) Save(ctx context.Context, data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 bucket 失败: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 bucket 失败: %w", err)
		}
	}

	err = retry(ctx, "s3", func() error {
		_, err := s.client.PutObject(ctx, s.bucket, filename, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType(filename)})
		return err
	})
	if err == nil {
		slog.Info("s3上传成功", "bucket", s.bucket, "filename", filename)
	}
	return err
}
