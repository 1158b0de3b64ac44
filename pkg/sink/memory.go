package sink

import (
	"bytes"
	"context"
	"sync"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// Memory collects the output in a growable buffer. It never prefers device
// writes.
type Memory struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

var _ Sink = (*Memory)(nil)

func (m *Memory) write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return pqerrors.New(pqerrors.ErrorTypeIO, "write to closed sink")
	}
	m.buf.Write(p)
	return nil
}

// HostWrite implements Sink.
func (m *Memory) HostWrite(_ context.Context, p []byte) error { return m.write(p) }

// DeviceWrite implements Sink.
func (m *Memory) DeviceWrite(_ context.Context, p []byte) error { return m.write(p) }

// IsDeviceWritePreferred implements Sink.
func (m *Memory) IsDeviceWritePreferred(int64) bool { return false }

// Flush implements Sink.
func (m *Memory) Flush(context.Context) error { return nil }

// Close implements Sink. The contents stay readable.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// BytesWritten implements Sink.
func (m *Memory) BytesWritten() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.buf.Len())
}

// Bytes returns a copy of everything written.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}
