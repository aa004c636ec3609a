// Package store implements the Image Store (IS) and Path Resolver (PR):
// the flat on-disk directory tree holding originals, derived pipeline
// outputs, and thumbnails, and the lookup that turns a UUID into a path.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// uuidForm matches the canonical hyphenated textual form of a UUID, the
// shape the Path Resolver accepts per spec §4.1.
var uuidForm = regexp.MustCompile(`^[0-9a-f-]{36}$`)

// CachedImagesDir and ThumbnailsDir are the two subtrees under the store
// root; everything else in root is treated as an original upload.
const (
	CachedImagesDir = "cached_images"
	ThumbnailsDir   = "thumbnails"
)

// Store owns the on-disk layout described in spec.md §6 ("Filesystem
// layout"): originals directly under root, derived PNGs under
// cached_images/, thumbnails (and their transient .lock sentinels) under
// thumbnails/.
type Store struct {
	root string
}

// New creates the store root and its two subdirectories if missing.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, CachedImagesDir), filepath.Join(root, ThumbnailsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create image store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// ValidID reports whether id is in the canonical textual UUID form
// accepted by Resolve.
func ValidID(id string) bool {
	return uuidForm.MatchString(id)
}

// Resolve implements the Path Resolver contract: given a UUID, locate the
// single file whose basename begins with that UUID followed by "." or
// end-of-name, searching the store root (originals) then cached_images/
// (derived outputs). It does not search thumbnails/ or recurse further.
//
// No lock is held; a caller that needs stability under concurrent deletion
// must re-check existence immediately before use, per spec §4.1.
func (s *Store) Resolve(id string) (string, bool) {
	if !ValidID(id) {
		return "", false
	}
	for _, dir := range []string{s.root, filepath.Join(s.root, CachedImagesDir)} {
		if path, ok := findByPrefix(dir, id); ok {
			return path, true
		}
	}
	return "", false
}

// findByPrefix performs a single, non-recursive directory listing looking
// for a basename equal to id or beginning with id+".".
func findByPrefix(dir, id string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == id || strings.HasPrefix(name, id+".") {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// Exists re-checks that a previously resolved path is still present. Used
// by callers of Resolve that must guard against a concurrent deletion
// landing between resolution and use.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AllocateDerivedPath mints a fresh UUID for a new DerivedImage and returns
// the path it will be written to: cached_images/<uuid>.png, per spec §4.2
// step (f). The caller (the Executor) is responsible for actually creating
// the file; allocation here does not touch the filesystem.
func (s *Store) AllocateDerivedPath() (uuid.UUID, string) {
	id := uuid.New()
	return id, filepath.Join(s.root, CachedImagesDir, id.String()+".png")
}

// OriginalPath returns the path a newly uploaded original with the given
// UUID and extension (including the leading dot, or empty) should be
// written to by the upload collaborator.
func (s *Store) OriginalPath(id uuid.UUID, ext string) string {
	return filepath.Join(s.root, id.String()+ext)
}

// ThumbnailPath returns the target path for a (uuid, width) thumbnail.
func (s *Store) ThumbnailPath(id string, width int) string {
	return filepath.Join(s.root, ThumbnailsDir, fmt.Sprintf("%s_w%d.jpg", id, width))
}

// LockPath returns the advisory lock sentinel path for a thumbnail target.
func LockPath(thumbnailPath string) string {
	return thumbnailPath + ".lock"
}

// Remove deletes a file if present; a missing file is not an error, since
// self-heal and invalidation both race benignly against other deleters.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
