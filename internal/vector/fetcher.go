package vector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/aihub/vectorstore-go/internal/errors"
)

// FetcherOptions 内容抓取配置
type FetcherOptions struct {
	MaxBytes int64
	Timeout  time.Duration

	// MinIO对象存储，留空则不支持s3://来源
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
}

// Fetcher 按URL抓取文档原始内容，支持http(s)与s3两种协议
type Fetcher struct {
	httpClient  *http.Client
	minioClient *minio.Client
	maxBytes    int64
}

// NewFetcher 创建内容抓取器
func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	f := &Fetcher{
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxBytes:   opts.MaxBytes,
	}

	if endpoint := strings.TrimSpace(opts.MinioEndpoint); endpoint != "" {
		// minio.New不需要协议前缀
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")

		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(opts.MinioAccessKey, opts.MinioSecretKey, ""),
			Secure: opts.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		f.minioClient = client
	}

	return f, nil
}

// Fetch 抓取URL指向的内容，超出大小上限视为失败
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid source url: %s", rawURL))
	}

	switch parsed.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "s3":
		return f.fetchS3(ctx, parsed)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported url scheme: %s", parsed.Scheme))
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid source url: %s", rawURL))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeFetchFailed, err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeFetchFailed,
			fmt.Sprintf("fetch %s: HTTP %d", rawURL, resp.StatusCode),
			resp.StatusCode >= 500)
	}

	return f.readLimited(resp.Body, rawURL)
}

func (f *Fetcher) fetchS3(ctx context.Context, parsed *url.URL) ([]byte, error) {
	if f.minioClient == nil {
		return nil, apperrors.NewValidationError("object storage not configured")
	}

	bucket := parsed.Host
	objectName := strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || objectName == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid s3 url: %s", parsed.String()))
	}

	obj, err := f.minioClient.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeFetchFailed, err.Error(), true)
	}
	defer obj.Close()

	// GetObject延迟报错，读取时才能拿到NoSuchKey
	data, err := io.ReadAll(io.LimitReader(obj, f.maxBytes+1))
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, apperrors.NewNotFoundError("object")
		}
		return nil, apperrors.NewBackendError(apperrors.ErrCodeFetchFailed, err.Error(), true)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("content from %s exceeds size limit of %d bytes", parsed.String(), f.maxBytes))
	}
	return data, nil
}

func (f *Fetcher) readLimited(r io.Reader, source string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.ErrCodeFetchFailed, err.Error(), true)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("content from %s exceeds size limit of %d bytes", source, f.maxBytes))
	}
	return data, nil
}
