package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("3fa85f64-5717-4562-b3fc-2c963f66afa6"))
	assert.False(t, ValidID("not-a-uuid"))
	assert.False(t, ValidID(""))
}

func TestResolveFindsOriginalThenDerived(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	_, ok := s.Resolve(id.String())
	assert.False(t, ok)

	originalPath := filepath.Join(s.Root(), id.String()+".jpg")
	require.NoError(t, os.WriteFile(originalPath, []byte("x"), 0o644))

	resolved, ok := s.Resolve(id.String())
	require.True(t, ok)
	assert.Equal(t, originalPath, resolved)
}

func TestResolveSearchesDerivedDirectory(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	derivedPath := filepath.Join(s.Root(), CachedImagesDir, id.String()+".png")
	require.NoError(t, os.WriteFile(derivedPath, []byte("x"), 0o644))

	resolved, ok := s.Resolve(id.String())
	require.True(t, ok)
	assert.Equal(t, derivedPath, resolved)
}

func TestResolveRejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Resolve("../../etc/passwd")
	assert.False(t, ok)
}

func TestAllocateDerivedPathIsUnderCachedImages(t *testing.T) {
	s := newTestStore(t)
	id, path := s.AllocateDerivedPath()
	assert.Equal(t, filepath.Join(s.Root(), CachedImagesDir, id.String()+".png"), path)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Root(), "missing.png")
	assert.NoError(t, Remove(path))
	assert.NoError(t, Remove(path))
}

func TestLockPath(t *testing.T) {
	assert.Equal(t, "/x/thumb.jpg.lock", LockPath("/x/thumb.jpg"))
}
