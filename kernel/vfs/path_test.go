package vfs_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
	"github.com/stretchr/testify/require"
)

func TestDirnameBasenameExtension(t *testing.T) {
	require.Equal(t, "/a/b", vfs.Dirname("/a/b/c.txt"))
	require.Equal(t, "c.txt", vfs.Basename("/a/b/c.txt"))
	require.Equal(t, "txt", vfs.Extension("/a/b/c.txt"))

	require.Equal(t, "/", vfs.Dirname("/c.txt"))
	require.Equal(t, "", vfs.Extension("/noext"))
}

func TestJoinInjectsExactlyOneSeparator(t *testing.T) {
	require.Equal(t, "/a/b/c", vfs.Join("/a", "b", "c"))
	require.Equal(t, "/a/b", vfs.Join("/a/", "/b"))
	require.Equal(t, "/a", vfs.Join("/a"))
}

func TestValidRejectsControlBytes(t *testing.T) {
	require.True(t, vfs.Valid("/a/b.txt"))
	require.False(t, vfs.Valid("/a\x00b"))
	require.False(t, vfs.Valid("/a\nb"))
	require.False(t, vfs.Valid("/a\rb"))
}

func TestEqualFoldIgnoresCase(t *testing.T) {
	require.True(t, vfs.EqualFold("HELLO.TXT", "hello.txt"))
	require.False(t, vfs.EqualFold("HELLO.TXT", "world.txt"))
}
