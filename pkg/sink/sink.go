// Package sink provides the destinations column chunk bytes are written to.
//
// A Sink receives bytes through two paths. HostWrite is used for data staged
// in a host buffer that the caller reuses right after the call returns.
// DeviceWrite receives a span of the encoder's arena directly; the sink must
// be done with the slice when the call returns. IsDeviceWritePreferred lets
// the sink pick the path per chunk size.
package sink

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// Sink is a byte destination for the writer.
type Sink interface {
	// HostWrite appends p, staged in host memory.
	HostWrite(ctx context.Context, p []byte) error
	// DeviceWrite appends p, a span of encoder arena memory.
	DeviceWrite(ctx context.Context, p []byte) error
	// IsDeviceWritePreferred reports whether a chunk of size bytes should be
	// written with DeviceWrite.
	IsDeviceWritePreferred(size int64) bool
	// Flush pushes buffered bytes to the destination.
	Flush(ctx context.Context) error
	// Close flushes and releases the destination. It is idempotent.
	Close(ctx context.Context) error
	// BytesWritten returns the number of bytes accepted so far.
	BytesWritten() int64
}

// streamSink adapts an io.Writer. It never prefers device writes: a remote
// stream buffers internally, so both paths cost the same copy.
type streamSink struct {
	w       io.Writer
	written atomic.Int64
	closed  atomic.Bool
	closeFn func(ctx context.Context) error
}

func (s *streamSink) write(ctx context.Context, p []byte) error {
	if s.closed.Load() {
		return pqerrors.New(pqerrors.ErrorTypeIO, "write to closed sink")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.w.Write(p)
	s.written.Add(int64(n))
	if err != nil {
		return pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "sink write failed").WithDetail("bytes", len(p))
	}
	return nil
}

func (s *streamSink) HostWrite(ctx context.Context, p []byte) error   { return s.write(ctx, p) }
func (s *streamSink) DeviceWrite(ctx context.Context, p []byte) error { return s.write(ctx, p) }
func (s *streamSink) IsDeviceWritePreferred(int64) bool               { return false }
func (s *streamSink) Flush(context.Context) error                     { return nil }
func (s *streamSink) BytesWritten() int64                             { return s.written.Load() }

func (s *streamSink) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}
