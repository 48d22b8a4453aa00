package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"shop_backend/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

type Uploader interface {
	// UploadFile 上传表单文件，返回公开访问地址
	UploadFile(ctx context.Context, file *multipart.FileHeader) (string, error)
	// UploadBytes 上传内存中的内容（发票等），objectKey 为对象路径
	UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
}

// ObjectStore OSS bucket 中用到的方法
type ObjectStore interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type AliyunOSSUploader struct {
	bucket ObjectStore
	config config.OSSConfig
	now    func() time.Time
}

func NewAliyunOSSUploader(cfg config.OSSConfig) (*AliyunOSSUploader, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, errors.New("oss config is missing")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "create oss client")
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, errors.Wrap(err, "open oss bucket")
	}

	return NewUploaderWithStore(bucket, cfg), nil
}

// NewUploaderWithStore 使用指定存储构造（测试时注入内存实现）
func NewUploaderWithStore(store ObjectStore, cfg config.OSSConfig) *AliyunOSSUploader {
	return &AliyunOSSUploader{bucket: store, config: cfg, now: time.Now}
}

func (u *AliyunOSSUploader) UploadFile(ctx context.Context, file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	// Generate unique filename: YYYYMMDD/uuid.ext
	ext := filepath.Ext(file.Filename)
	filename := fmt.Sprintf("%s/%s%s", u.now().Format("20060102"), uuid.New().String(), ext)

	if err := u.bucket.PutObject(filename, src, oss.WithContext(ctx)); err != nil {
		return "", errors.Wrap(err, "put object")
	}
	return u.publicURL(filename), nil
}

func (u *AliyunOSSUploader) UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := u.bucket.PutObject(objectKey, bytes.NewReader(data), opts...); err != nil {
		return "", errors.Wrapf(err, "put object %s", objectKey)
	}
	return u.publicURL(objectKey), nil
}

// publicURL bucket 需为公共读或挂载 CDN
func (u *AliyunOSSUploader) publicURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, u.config.Endpoint, key)
}
