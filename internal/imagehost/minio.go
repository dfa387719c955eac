package imagehost

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"snapify/internal/config"
	"snapify/internal/ids"
	"snapify/internal/media/sniffer"
	"snapify/internal/rules"
)

// MinioHost keeps photos in an S3 compatible bucket. The object key doubles
// as the public id.
type MinioHost struct {
	client     *minio.Client
	cfg        config.StorageConfig
	publicBase string
}

func NewMinioHost(cfg config.StorageConfig) (*MinioHost, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &MinioHost{
		client:     client,
		cfg:        cfg,
		publicBase: publicBaseURL(cfg, useSSL),
	}, nil
}

func (h *MinioHost) EnsureBucket(ctx context.Context) error {
	exists, err := h.client.BucketExists(ctx, h.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", h.cfg.Bucket, err)
	}
	if !exists {
		if err := h.client.MakeBucket(ctx, h.cfg.Bucket, minio.MakeBucketOptions{Region: h.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", h.cfg.Bucket, err)
		}
	}
	return nil
}

func (h *MinioHost) Upload(ctx context.Context, data []byte, folder string) (UploadResult, error) {
	kind, err := sniffer.DetectHead(data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: unsupported image type", rules.ErrInvalidInput)
	}

	prepared, err := LimitWidth(data, kind, h.cfg.MaxWidth, h.cfg.MaxPixels)
	if err != nil {
		return UploadResult{}, err
	}

	objectKey := path.Join(folder, fmt.Sprintf("%s.%s", ids.New(), kind.Extension()))

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	_, err = h.client.PutObject(ctx, h.cfg.Bucket, objectKey, bytes.NewReader(prepared.Data), int64(len(prepared.Data)), minio.PutObjectOptions{
		ContentType:  kind.MIME,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: put object: %v", rules.ErrUpstream, err)
	}

	return UploadResult{
		URL:      h.URL(objectKey),
		PublicID: objectKey,
		Width:    prepared.Width,
		Height:   prepared.Height,
	}, nil
}

func (h *MinioHost) Delete(ctx context.Context, publicID string) error {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	if err := h.client.RemoveObject(ctx, h.cfg.Bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove object: %v", rules.ErrUpstream, err)
	}
	return nil
}

func (h *MinioHost) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.Timeout)
}

func (h *MinioHost) URL(publicID string) string {
	return h.publicBase + "/" + publicID
}

func publicBaseURL(cfg config.StorageConfig, useSSL bool) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(cfg.PublicBaseURL, "/")
	}
	base := strings.TrimSuffix(cfg.Endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		scheme := "http://"
		if useSSL {
			scheme = "https://"
		}
		base = scheme + base
	}
	return fmt.Sprintf("%s/%s", base, cfg.Bucket)
}

var _ Host = (*MinioHost)(nil)
