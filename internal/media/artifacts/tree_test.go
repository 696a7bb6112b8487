package artifacts

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTree_CreatesTempDir(t *testing.T) {
	root := t.TempDir()
	tree, err := NewTree(root)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "temp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, root, tree.Root())

	_, err = NewTree(" ")
	require.Error(t, err)
}

func TestTree_Paths(t *testing.T) {
	root := t.TempDir()
	tree, err := NewTree(root)
	require.NoError(t, err)
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	assert.Equal(t, filepath.Join(root, "temp", id.String()+".dat"), tree.UploadPath(id))
	assert.Equal(t, filepath.Join(root, "temp", id.String()+".lock"), tree.LockPath(id))

	dir, err := tree.MediaDir("auth0|42", id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "auth0|42", id.String()), dir)
}

func TestTree_RejectsUnsafeOwners(t *testing.T) {
	tree, err := NewTree(t.TempDir())
	require.NoError(t, err)

	for _, owner := range []string{"", ".", "..", "temp", "a/b", `a\b`, "../../etc"} {
		_, err := tree.MediaDir(owner, uuid.New())
		require.ErrorIs(t, err, ErrInvalidOwner, owner)
	}
}

func TestTree_MediaFSAndRemove(t *testing.T) {
	tree, err := NewTree(t.TempDir())
	require.NoError(t, err)
	id := uuid.New()

	dir, err := tree.MediaDir("owner", id)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0o644))

	fsys, err := tree.MediaFS("owner", id)
	require.NoError(t, err)
	data, err := fs.ReadFile(fsys, "playlist.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(data))

	_, err = fs.ReadFile(fsys, "../other")
	require.Error(t, err)

	require.NoError(t, tree.RemoveMedia("owner", id))
	_, err = os.Stat(dir)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestTree_RemoveUploadIgnoresMissing(t *testing.T) {
	tree, err := NewTree(t.TempDir())
	require.NoError(t, err)
	id := uuid.New()

	require.NoError(t, tree.RemoveUpload(id))

	require.NoError(t, os.WriteFile(tree.UploadPath(id), []byte("raw"), 0o644))
	require.NoError(t, tree.RemoveUpload(id))
	_, err = os.Stat(tree.UploadPath(id))
	require.ErrorIs(t, err, fs.ErrNotExist)
}
