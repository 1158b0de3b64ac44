package sink

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GCSConfig locates the output object.
type GCSConfig struct {
	Bucket          string
	Object          string
	CredentialsFile string
	ChunkSize       int
}

// GCS streams the output through a storage.Writer. The object becomes
// visible when Close succeeds.
type GCS struct {
	streamSink
	client *storage.Client
	object string
	logger *zap.Logger
}

// NewGCS creates a GCS sink.
func NewGCS(ctx context.Context, cfg GCSConfig, logger *zap.Logger) (*GCS, error) {
	if cfg.Bucket == "" || cfg.Object == "" {
		return nil, pqerrors.New(pqerrors.ErrorTypeConfig, "gcs sink requires bucket and object")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, "failed to create GCS client")
	}

	w := client.Bucket(cfg.Bucket).Object(cfg.Object).NewWriter(ctx)
	w.ContentType = "application/vnd.apache.parquet"
	if cfg.ChunkSize > 0 {
		w.ChunkSize = cfg.ChunkSize
	}
	s := NewGCSWithWriter(w, cfg.Bucket+"/"+cfg.Object, logger)
	s.client = client
	return s, nil
}

// NewGCSWithWriter creates a GCS sink over an object writer.
func NewGCSWithWriter(w io.WriteCloser, object string, logger *zap.Logger) *GCS {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GCS{object: object, logger: logger}
	s.streamSink.w = w
	s.streamSink.closeFn = func(context.Context) error {
		err := w.Close()
		if s.client != nil {
			_ = s.client.Close()
		}
		if err != nil {
			return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to finalize GCS object").WithDetail("object", object)
		}
		s.logger.Info("uploaded to GCS", zap.String("object", object), zap.Int64("bytes", s.BytesWritten()))
		return nil
	}
	return s
}

var _ Sink = (*GCS)(nil)
