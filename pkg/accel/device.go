package accel

import (
	"sync"

	"github.com/ajitpratap0/parquetry/pkg/pool"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// Ref addresses Len bytes at offset Off of an Arena.
type Ref struct {
	Off int64
	Len int64
}

// End returns the offset one past the last byte.
func (r Ref) End() int64 { return r.Off + r.Len }

// Sub returns the sub-range [off, off+n) relative to r.
func (r Ref) Sub(off, n int64) Ref { return Ref{Off: r.Off + off, Len: n} }

// Device models accelerator memory: a fixed capacity shared by every arena
// and reservation of one writer.
type Device struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	peak     int64
}

// NewDevice creates a device with the given capacity in bytes.
func NewDevice(capacity int64) *Device {
	return &Device{capacity: capacity}
}

// Reserve accounts n bytes against the capacity.
func (d *Device) Reserve(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.used+n > d.capacity {
		return pqerrors.Wrap(pqerrors.ErrOutOfDeviceMemory, pqerrors.ErrorTypeResource, "device reservation failed").
			WithDetail("requested", n).
			WithDetail("used", d.used).
			WithDetail("capacity", d.capacity)
	}
	d.used += n
	if d.used > d.peak {
		d.peak = d.used
	}
	return nil
}

// Free returns n reserved bytes.
func (d *Device) Free(n int64) {
	d.mu.Lock()
	d.used -= n
	if d.used < 0 {
		d.used = 0
	}
	d.mu.Unlock()
}

// Used returns the bytes currently reserved.
func (d *Device) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// Peak returns the highest reservation seen.
func (d *Device) Peak() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

// Alloc reserves size bytes and returns an arena over them.
func (d *Device) Alloc(size int64) (*Arena, error) {
	if err := d.Reserve(size); err != nil {
		return nil, err
	}
	return &Arena{dev: d, buf: pool.GlobalBufferPool.Get(int(size))}, nil
}

// Arena is a bump allocator over one device allocation. Allocations are
// addressed by Ref and released all at once by Reset.
type Arena struct {
	mu  sync.Mutex
	dev *Device
	buf []byte
	off int64
}

// Size returns the arena capacity.
func (a *Arena) Size() int64 { return int64(len(a.buf)) }

// Alloc carves n bytes off the arena.
func (a *Arena) Alloc(n int64) (Ref, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return Ref{}, pqerrors.New(pqerrors.ErrorTypeUsage, "alloc on released arena")
	}
	if n < 0 || a.off+n > int64(len(a.buf)) {
		return Ref{}, pqerrors.Wrap(pqerrors.ErrOutOfDeviceMemory, pqerrors.ErrorTypeResource, "arena exhausted").
			WithDetail("requested", n).
			WithDetail("offset", a.off).
			WithDetail("size", len(a.buf))
	}
	r := Ref{Off: a.off, Len: n}
	a.off += n
	return r, nil
}

// Bytes returns the memory addressed by r.
func (a *Arena) Bytes(r Ref) ([]byte, error) {
	if r.Off < 0 || r.Len < 0 || r.End() > int64(len(a.buf)) {
		return nil, pqerrors.Newf(pqerrors.ErrorTypeInternal, "ref [%d,%d) outside arena of %d bytes", r.Off, r.End(), len(a.buf))
	}
	return a.buf[r.Off:r.End():r.End()], nil
}

// Reset makes the whole arena available again. Refs handed out earlier
// must not be used afterwards.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.off = 0
	a.mu.Unlock()
}

// Release returns the memory to the device. It is idempotent.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return
	}
	a.dev.Free(int64(len(a.buf)))
	pool.GlobalBufferPool.Put(a.buf)
	a.buf = nil
	a.off = 0
}
