// internal/worker/s3_uploader.go
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"logship/internal/config"
	"logship/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveUploader 는 완성된 archive 파일을 cold storage 로 보낸다.
type ArchiveUploader interface {
	UploadArchive(ctx context.Context, path, key string) error
}

// S3Uploader 는 archive 파일을 S3 로 업로드한다.
//   - SDK retry 는 0 으로 고정, 재시도는 S3AppRetries 만 사용
//   - 시도당 S3Timeout
//   - 실패해도 로컬 archive 는 남아 있으므로 sweep 은 계속 진행한다
type S3Uploader struct {
	bucket  string
	timeout time.Duration
	retries int
	metrics *metrics.Metrics
	client  *s3.Client
}

// NewS3Uploader 는 AWS SDK Config 를 읽어 client 를 만든다.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	retries := cfg.S3AppRetries
	if retries <= 0 {
		retries = 1
	}

	return &S3Uploader{
		bucket:  cfg.ArchiveBucket,
		timeout: cfg.S3Timeout,
		retries: retries,
		metrics: m,
		client:  client,
	}, nil
}

// UploadArchive
// -----------------------
// 로컬 archive 파일을 그대로 업로드한다.
// - retry 시 Seek(0) 으로 rewind
// - retry + exponential backoff (최대 2초)
// - shutdown-safe: ctx.Done() 시 즉시 중단
func (u *S3Uploader) UploadArchive(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}

		if err := u.putObject(ctx, key, f, info.Size()); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.ArchiveUploadErrorsTotal, 1)
		}

		if attempt == u.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출 (시도당 timeout).
func (u *S3Uploader) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx2, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	return err
}
