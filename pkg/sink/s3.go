package sink

import (
	"context"
	"io"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	defaultUploadPartSize = 5 * 1024 * 1024 // 5MB
	defaultMaxConcurrency = 5
)

// Uploader is the part of manager.Uploader the S3 sink uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config locates the output object.
type S3Config struct {
	Bucket         string
	Key            string
	Region         string
	UploadPartSize int64
	MaxConcurrency int
}

// S3 streams the output into a multipart upload. Bytes flow through a pipe
// into the uploader, which cuts parts as they fill; Close completes the
// upload.
type S3 struct {
	streamSink
	bucket string
	key    string
	pw     *io.PipeWriter
	done   chan error
	logger *zap.Logger
}

// NewS3 creates an S3 sink with the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, pqerrors.New(pqerrors.ErrorTypeConfig, "s3 sink requires bucket and key")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	partSize := cfg.UploadPartSize
	if partSize <= 0 {
		partSize = defaultUploadPartSize
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultMaxConcurrency
	}
	up := manager.NewUploader(s3.NewFromConfig(awsCfg), func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = concurrency
	})
	return NewS3WithUploader(ctx, up, cfg.Bucket, cfg.Key, logger), nil
}

// NewS3WithUploader creates an S3 sink over an existing uploader. The upload
// starts immediately and runs until Close.
func NewS3WithUploader(ctx context.Context, up Uploader, bucket, key string, logger *zap.Logger) *S3 {
	if logger == nil {
		logger = zap.NewNop()
	}
	pr, pw := io.Pipe()
	s := &S3{
		bucket: bucket,
		key:    key,
		pw:     pw,
		done:   make(chan error, 1),
		logger: logger,
	}
	s.streamSink.w = pw
	s.streamSink.closeFn = s.finish

	go func() {
		_, err := up.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String("application/vnd.apache.parquet"),
		})
		// unblock writers if the upload gave up early
		pr.CloseWithError(err)
		s.done <- err
	}()
	return s
}

var _ Sink = (*S3)(nil)

func (s *S3) finish(context.Context) error {
	s.pw.Close()
	if err := <-s.done; err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to upload to S3").
			WithDetail("bucket", s.bucket).
			WithDetail("key", s.key)
	}
	s.logger.Info("uploaded to S3",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.Int64("bytes", s.BytesWritten()))
	return nil
}
