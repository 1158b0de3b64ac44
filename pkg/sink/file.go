package sink

import (
	"bufio"
	"context"
	"os"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
)

const (
	// DefaultDeviceWriteThreshold is the chunk size from which File writes
	// arena memory straight to the file instead of staging it.
	DefaultDeviceWriteThreshold = 4 << 20
	defaultFileBufferSize       = 1 << 20
)

// File writes to a local file through a buffered writer. Chunks at or above
// the device write threshold bypass the buffer.
type File struct {
	path      string
	f         *os.File
	w         *bufio.Writer
	threshold int64
	written   int64
	closed    bool
	logger    *zap.Logger
}

// FileOption configures a File sink.
type FileOption func(*File)

// WithDeviceWriteThreshold sets the chunk size from which device writes are
// preferred. A negative threshold disables them.
func WithDeviceWriteThreshold(n int64) FileOption {
	return func(f *File) { f.threshold = n }
}

// WithFileLogger sets the logger.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(f *File) { f.logger = l }
}

// CreateFile creates or truncates path.
func CreateFile(path string, opts ...FileOption) (*File, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "failed to create output file").WithDetail("path", path)
	}
	f := &File{
		path:      path,
		f:         fh,
		w:         bufio.NewWriterSize(fh, defaultFileBufferSize),
		threshold: DefaultDeviceWriteThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

var _ Sink = (*File)(nil)

// Path returns the file path.
func (f *File) Path() string { return f.path }

func (f *File) check() error {
	if f.closed {
		return pqerrors.New(pqerrors.ErrorTypeIO, "write to closed sink").WithDetail("path", f.path)
	}
	return nil
}

// HostWrite implements Sink.
func (f *File) HostWrite(_ context.Context, p []byte) error {
	if err := f.check(); err != nil {
		return err
	}
	n, err := f.w.Write(p)
	f.written += int64(n)
	if err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "file write failed").WithDetail("path", f.path)
	}
	return nil
}

// DeviceWrite implements Sink. Buffered bytes are flushed first so the file
// keeps the call order.
func (f *File) DeviceWrite(_ context.Context, p []byte) error {
	if err := f.check(); err != nil {
		return err
	}
	if err := f.w.Flush(); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "file flush failed").WithDetail("path", f.path)
	}
	n, err := f.f.Write(p)
	f.written += int64(n)
	if err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "file write failed").WithDetail("path", f.path)
	}
	return nil
}

// IsDeviceWritePreferred implements Sink.
func (f *File) IsDeviceWritePreferred(size int64) bool {
	return f.threshold >= 0 && size >= f.threshold
}

// Flush implements Sink.
func (f *File) Flush(context.Context) error {
	if f.closed {
		return nil
	}
	if err := f.w.Flush(); err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "file flush failed").WithDetail("path", f.path)
	}
	return nil
}

// Close implements Sink.
func (f *File) Close(ctx context.Context) error {
	if f.closed {
		return nil
	}
	flushErr := f.Flush(ctx)
	f.closed = true
	if err := f.f.Close(); err != nil && flushErr == nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "file close failed").WithDetail("path", f.path)
	}
	f.logger.Debug("file sink closed", zap.String("path", f.path), zap.Int64("bytes", f.written))
	return flushErr
}

// BytesWritten implements Sink.
func (f *File) BytesWritten() int64 { return f.written }
