package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lingua-quiz/config"
	"lingua-quiz/internal/logger"
)

// MinioClient 是MinIO存储客户端的封装
type MinioClient struct {
	client        *minio.Client
	bucketName    string
	publicBaseURL string
	publicRead    bool
	log           *logger.Logger
}

// NewMinioClient 创建一个新的MinIO客户端
// bucket采用懒创建：首次上传前调用EnsureBucket
func NewMinioClient(cfg *config.MinIOConfig, log *logger.Logger) (*MinioClient, error) {
	// 解析endpoint
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析MinIO endpoint失败: %w", err)
	}

	secure := u.Scheme == "https"
	endpoint := u.Host
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	// 对外访问地址：未配置时退回endpoint本身
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = strings.TrimRight(cfg.Endpoint, "/")
	}

	return &MinioClient{
		client:        client,
		bucketName:    cfg.BucketName,
		publicBaseURL: publicBase,
		publicRead:    cfg.PublicRead,
		log:           log,
	}, nil
}

// EnsureBucket 确保bucket存在，不存在则创建
// 创建是幂等的，并发调用时撞上"已存在"错误视为成功
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucketName)
	if err != nil {
		return fmt.Errorf("检查bucket是否存在失败: %w", err)
	}
	if exists {
		return nil
	}

	c.log.Info("Bucket不存在，正在创建", "bucket", c.bucketName)
	err = c.client.MakeBucket(ctx, c.bucketName, minio.MakeBucketOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "BucketAlreadyOwnedByYou" || errResp.Code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("创建bucket失败: %w", err)
	}

	// 按配置开放匿名读权限，保证公开URL可直接播放
	if c.publicRead {
		if err := c.setPublicReadPolicy(ctx); err != nil {
			c.log.Warn("设置公开读策略失败", "bucket", c.bucketName, "error", err)
		}
	}

	return nil
}

// setPublicReadPolicy 允许匿名读取bucket中的对象
func (c *MinioClient) setPublicReadPolicy(ctx context.Context) error {
	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, c.bucketName)

	return c.client.SetBucketPolicy(ctx, c.bucketName, policy)
}

// Upload 上传数据并返回可公开访问的URL
func (c *MinioClient) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)

	info, err := c.client.PutObject(ctx, c.bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return "", fmt.Errorf("上传文件失败: %w", err)
	}

	c.log.Info("文件上传成功", "object", objectName, "size", info.Size)

	return c.PublicURL(objectName), nil
}

// PublicURL 返回对象的固定公开URL
// 不使用预签名URL：同一对象的地址必须稳定可预测
func (c *MinioClient) PublicURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucketName, objectName)
}

// ObjectExists 检查对象是否存在
func (c *MinioClient) ObjectExists(ctx context.Context, objectName string) (bool, int64, error) {
	stat, err := c.client.StatObject(ctx, c.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("查询对象状态失败: %w", err)
	}

	return stat.Size > 0, stat.Size, nil
}

// DeleteObject 删除对象
func (c *MinioClient) DeleteObject(ctx context.Context, objectName string) error {
	return c.client.RemoveObject(ctx, c.bucketName, objectName, minio.RemoveObjectOptions{})
}
