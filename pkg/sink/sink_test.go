package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.HostWrite(ctx, []byte("PAR1")))
	require.NoError(t, m.DeviceWrite(ctx, []byte("data")))
	assert.False(t, m.IsDeviceWritePreferred(1<<40))
	assert.Equal(t, int64(8), m.BytesWritten())

	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Close(ctx))
	assert.Equal(t, []byte("PAR1data"), m.Bytes())
	assert.True(t, pqerrors.IsType(m.HostWrite(ctx, []byte("x")), pqerrors.ErrorTypeIO))
}

func TestFileKeepsWriteOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.parquet")
	f, err := CreateFile(path, WithDeviceWriteThreshold(8))
	require.NoError(t, err)

	assert.False(t, f.IsDeviceWritePreferred(7))
	assert.True(t, f.IsDeviceWritePreferred(8))

	require.NoError(t, f.HostWrite(ctx, []byte("PAR1")))
	require.NoError(t, f.DeviceWrite(ctx, []byte("0123456789")))
	require.NoError(t, f.HostWrite(ctx, []byte("tail")))
	assert.Equal(t, int64(18), f.BytesWritten())
	require.NoError(t, f.Close(ctx))
	require.NoError(t, f.Close(ctx))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PAR10123456789tail", string(got))

	assert.Error(t, f.HostWrite(ctx, []byte("x")))
}

func TestFileDeviceWritesDisabled(t *testing.T) {
	f, err := CreateFile(filepath.Join(t.TempDir(), "x"), WithDeviceWriteThreshold(-1))
	require.NoError(t, err)
	defer f.Close(context.Background())
	assert.False(t, f.IsDeviceWritePreferred(1<<40))
}

type fakeUploader struct {
	mu     sync.Mutex
	bucket string
	key    string
	body   bytes.Buffer
	err    error
}

func (u *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bucket = aws.ToString(in.Bucket)
	u.key = aws.ToString(in.Key)
	if u.err != nil {
		return nil, u.err
	}
	if _, err := io.Copy(&u.body, in.Body); err != nil {
		return nil, err
	}
	return &manager.UploadOutput{}, nil
}

func TestS3StreamsIntoUpload(t *testing.T) {
	ctx := context.Background()
	up := &fakeUploader{}
	s := NewS3WithUploader(ctx, up, "bucket", "dir/out.parquet", nil)

	require.NoError(t, s.HostWrite(ctx, []byte("PAR1")))
	require.NoError(t, s.DeviceWrite(ctx, []byte("chunk")))
	assert.False(t, s.IsDeviceWritePreferred(1<<30))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "bucket", up.bucket)
	assert.Equal(t, "dir/out.parquet", up.key)
	assert.Equal(t, "PAR1chunk", up.body.String())
	assert.Equal(t, int64(9), s.BytesWritten())
}

func TestS3UploadFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("access denied")
	s := NewS3WithUploader(ctx, &fakeUploader{err: boom}, "b", "k", nil)

	// the failed upload closes the pipe, so writes fail instead of blocking
	err := s.HostWrite(ctx, []byte("PAR1"))
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeIO))

	err = s.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
	err    error
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return b.err
}

func TestGCS(t *testing.T) {
	ctx := context.Background()
	w := &bufferCloser{}
	s := NewGCSWithWriter(w, "bucket/out.parquet", nil)

	require.NoError(t, s.HostWrite(ctx, []byte("PAR1")))
	require.NoError(t, s.Close(ctx))
	assert.True(t, w.closed)
	assert.Equal(t, "PAR1", w.String())

	failing := NewGCSWithWriter(&bufferCloser{err: errors.New("precondition failed")}, "b/o", nil)
	assert.True(t, pqerrors.IsType(failing.Close(ctx), pqerrors.ErrorTypeIO))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, filepath.Join(dir, "a.parquet"), nil)
	require.NoError(t, err)
	require.IsType(t, &File{}, s)
	require.NoError(t, s.Close(ctx))

	s, err = Open(ctx, "file://"+filepath.Join(dir, "b.parquet"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	assert.FileExists(t, filepath.Join(dir, "b.parquet"))

	_, err = Open(ctx, "s3://bucket-only", nil)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeConfig))

	_, err = Open(ctx, "ftp://host/file", nil)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeConfig))
}
