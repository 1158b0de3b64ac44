package sink

import (
	"context"
	"strings"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
)

// Open creates a sink for a destination URI: s3://bucket/key, gs://bucket/object,
// or a local path.
func Open(ctx context.Context, uri string, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return openFile(uri, logger)
	}
	if scheme == "file" {
		return openFile(rest, logger)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return nil, pqerrors.Newf(pqerrors.ErrorTypeConfig, "destination %q needs a bucket and an object name", uri)
	}
	switch scheme {
	case "s3":
		s, err := NewS3(ctx, S3Config{Bucket: bucket, Key: key}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gs", "gcs":
		s, err := NewGCS(ctx, GCSConfig{Bucket: bucket, Object: key}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, pqerrors.Newf(pqerrors.ErrorTypeConfig, "unsupported destination scheme %q", scheme)
	}
}

func openFile(path string, logger *zap.Logger) (Sink, error) {
	f, err := CreateFile(path, WithFileLogger(logger))
	if err != nil {
		return nil, err
	}
	return f, nil
}
