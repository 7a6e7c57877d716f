package securestore_test

import (
	"bytes"
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/crypto/chacha20drbg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
	"github.com/dmorton63/qaiosplus-sub000/securestore"
	"github.com/stretchr/testify/require"
)

// memFile and memFS are a minimal in-memory vfs.Filesystem, standing in
// for a mounted FAT volume so the secure store can be exercised without a
// disk image.
type memFile struct {
	data []byte
	pos  int

	fs   *memFS
	path string
}

func (f *memFile) Read(p []byte) (int, status.Status) {
	if f.pos >= len(f.data) {
		return 0, status.Success
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, status.Success
}

func (f *memFile) Write(p []byte) (int, status.Status) {
	f.fs.files[f.path] = append(f.fs.files[f.path], p...)
	return len(p), status.Success
}

func (f *memFile) Close() status.Status { return status.Success }

type memFS struct {
	files map[string][]byte
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string][]byte)}
}

func (m *memFS) Open(path string, mode vfs.OpenMode) (vfs.FileHandle, status.Status) {
	if mode == vfs.ReadOnly {
		data, ok := m.files[path]
		if !ok {
			return nil, status.NotFound
		}
		cp := append([]byte{}, data...)
		return &memFile{data: cp}, status.Success
	}

	m.files[path] = nil
	return &memFile{fs: m, path: path}, status.Success
}

func (m *memFS) ReadDir(path string) ([]vfs.DirEntry, status.Status) {
	return nil, status.NotSupported
}

func newTestStore(t *testing.T, opts ...securestore.Option) *securestore.Store {
	t.Helper()

	v := vfs.New()
	require.Equal(t, status.Success, v.Mount("/system", newMemFS()))

	pool := chacha20drbg.New(nil)
	pool.AddEntropy([]byte("deterministic test entropy"))

	return securestore.New(v, pool, opts...)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	plaintext := bytes.Repeat([]byte{0xAB}, 96)

	require.Equal(t, status.Success, s.Write("TEST.BIN", plaintext))

	got, st := s.Read("TEST.BIN")
	require.Equal(t, status.Success, st)
	require.Equal(t, plaintext, got)
}

func TestReadMissingKeyIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, st := s.Read("NOPE.BIN")
	require.Equal(t, status.NotFound, st)
}

func TestWriteRejectsInvalidKeyName(t *testing.T) {
	s := newTestStore(t)

	st := s.Write("toolongname.bin", []byte("data"))
	require.Equal(t, status.InvalidParam, st)
}

func TestWrapKeyPersistsAcrossStoreInstances(t *testing.T) {
	v := vfs.New()
	fs := newMemFS()
	require.Equal(t, status.Success, v.Mount("/system", fs))

	pool1 := chacha20drbg.New(nil)
	pool1.AddEntropy([]byte("seed one"))
	s1 := securestore.New(v, pool1)
	require.Equal(t, status.Success, s1.Write("A.BIN", []byte("first store instance")))

	pool2 := chacha20drbg.New(nil)
	pool2.AddEntropy([]byte("seed two"))
	s2 := securestore.New(v, pool2)

	got, st := s2.Read("A.BIN")
	require.Equal(t, status.Success, st)
	require.Equal(t, []byte("first store instance"), got)
}

func TestTamperedBlobFailsToRead(t *testing.T) {
	v := vfs.New()
	fs := newMemFS()
	require.Equal(t, status.Success, v.Mount("/system", fs))

	pool := chacha20drbg.New(nil)
	pool.AddEntropy([]byte("seed"))
	s := securestore.New(v, pool)

	require.Equal(t, status.Success, s.Write("T.BIN", []byte("secret payload")))

	blob := fs.files["/sc/T.BIN"]
	require.NotEmpty(t, blob)
	blob[len(blob)-1] ^= 0xFF

	_, st := s.Read("T.BIN")
	require.Equal(t, status.Error, st)
}
