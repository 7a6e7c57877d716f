package vfs_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
	"github.com/stretchr/testify/require"
)

type fakeFile struct {
	data []byte
	pos  int
}

func (f *fakeFile) Read(buf []byte) (int, status.Status) {
	n := copy(buf, f.data[f.pos:])
	f.pos += n
	return n, status.Success
}

func (f *fakeFile) Write(buf []byte) (int, status.Status) {
	f.data = append(f.data[:f.pos], buf...)
	f.pos += len(buf)
	return len(buf), status.Success
}

func (f *fakeFile) Close() status.Status { return status.Success }

type fakeFS struct {
	name    string
	content []byte
}

func (f *fakeFS) Open(path string, mode vfs.OpenMode) (vfs.FileHandle, status.Status) {
	if path != "/"+f.name {
		return nil, status.NotFound
	}
	return &fakeFile{data: append([]byte(nil), f.content...)}, status.Success
}

func (f *fakeFS) ReadDir(path string) ([]vfs.DirEntry, status.Status) {
	return []vfs.DirEntry{{Name: f.name, Size: uint64(len(f.content))}}, status.Success
}

func TestLongestPrefixMountWins(t *testing.T) {
	v := vfs.New()

	shortMount := &fakeFS{name: "a.txt", content: []byte("short")}
	longMount := &fakeFS{name: "b.txt", content: []byte("long")}

	require.Equal(t, status.Success, v.Mount("/mnt", shortMount))
	require.Equal(t, status.Success, v.Mount("/mnt/sub", longMount))

	h, s := v.Open("/mnt/sub/b.txt", vfs.ReadOnly)
	require.Equal(t, status.Success, s)

	buf := make([]byte, 4)
	n, s := v.Read(h, buf)
	require.Equal(t, status.Success, s)
	require.Equal(t, "long", string(buf[:n]))
}

func TestMountPrefixRequiresComponentBoundary(t *testing.T) {
	v := vfs.New()

	// "/mnt" must not match a path like "/mntextra/..." just because it
	// shares the literal prefix "/mnt" — the match must land on a '/'
	// boundary.
	require.Equal(t, status.Success, v.Mount("/mnt", &fakeFS{name: "x.txt", content: []byte("x")}))

	_, s := v.Open("/mntextra/x.txt", vfs.ReadOnly)
	require.Equal(t, status.NotFound, s)
}

func TestCloseAlwaysDeletesHandle(t *testing.T) {
	v := vfs.New()
	require.Equal(t, status.Success, v.Mount("/", &fakeFS{name: "a.txt", content: []byte("a")}))

	h, s := v.Open("/a.txt", vfs.ReadOnly)
	require.Equal(t, status.Success, s)

	require.Equal(t, status.Success, v.Close(h))
	require.Equal(t, status.NotFound, v.Close(h))
}

func TestOpenMissingMountIsNotFound(t *testing.T) {
	v := vfs.New()
	_, s := v.Open("/nowhere/file.txt", vfs.ReadOnly)
	require.Equal(t, status.NotFound, s)
}

func TestOpenRejectsInvalidPath(t *testing.T) {
	v := vfs.New()
	require.Equal(t, status.Success, v.Mount("/", &fakeFS{name: "a.txt", content: []byte("a")}))

	_, s := v.Open("/a.txt\x00", vfs.ReadOnly)
	require.Equal(t, status.InvalidParam, s)
}
