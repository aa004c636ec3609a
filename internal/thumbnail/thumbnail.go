// Package thumbnail implements the Thumbnail Service (TS): on-demand,
// single-writer-per-(uuid,width) generation of preview JPEGs from an
// Image Store entry, by invoking an external thumbnailer binary.
package thumbnail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"vipspatchbay/internal/executor"
	"vipspatchbay/internal/store"
)

// lockWait bounds how long a second requester waits on the advisory lock
// for a thumbnail another goroutine (or process) is already generating.
// If the lock is not acquired in that time, PathFor returns an error.
const lockWait = 30 * time.Second

// Service generates and serves thumbnails by shelling out to an external
// thumbnailer, per spec.md §6's second required binary.
type Service struct {
	store          *store.Store
	thumbnailerBin string
	constraintArgs []string
	timeout        time.Duration
}

// New constructs a Thumbnail Service. thumbnailerBin is the binary
// invoked for every generation; constraintArgs are appended after the
// width argument on every invocation (the permissive height constraint
// spec.md §4.4 calls for); timeout bounds each invocation.
func New(s *store.Store, thumbnailerBin string, constraintArgs []string, timeout time.Duration) *Service {
	if thumbnailerBin == "" {
		thumbnailerBin = "vipsthumbnail"
	}
	return &Service{store: s, thumbnailerBin: thumbnailerBin, constraintArgs: constraintArgs, timeout: timeout}
}

// PathFor implements spec.md §4.4's check-lock-check discipline: if the
// thumbnail already exists, its path is returned immediately. Otherwise
// an exclusive advisory lock on a sibling ".lock" file serializes
// concurrent generation for the same (uuid, width) pair: the second
// caller blocks on the lock, then finds the first caller's output already
// on disk and skips regenerating it.
func (s *Service) PathFor(ctx context.Context, id string, width int) (string, error) {
	sourcePath, ok := s.store.Resolve(id)
	if !ok || !store.Exists(sourcePath) {
		return "", fmt.Errorf("source image %s not found", id)
	}

	thumbPath := s.store.ThumbnailPath(id, width)
	if store.Exists(thumbPath) {
		return thumbPath, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	lock := flock.New(store.LockPath(thumbPath))
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("acquire thumbnail lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("timed out waiting for thumbnail lock on %s", thumbPath)
	}
	defer func() {
		_ = lock.Unlock()
		_ = store.Remove(store.LockPath(thumbPath))
	}()

	// Re-check: another process may have produced it while we waited for
	// the lock.
	if store.Exists(thumbPath) {
		return thumbPath, nil
	}

	if err := s.generate(ctx, sourcePath, thumbPath, width); err != nil {
		return "", err
	}
	return thumbPath, nil
}

// generate invokes the thumbnailer binary with argv
// [source, target, width, …constraints], the shape spec.md §6 defines.
func (s *Service) generate(ctx context.Context, sourcePath, thumbPath string, width int) error {
	argv := make([]string, 0, 3+len(s.constraintArgs))
	argv = append(argv, sourcePath, thumbPath, strconv.Itoa(width))
	argv = append(argv, s.constraintArgs...)

	if _, err := executor.RunArgv(ctx, s.timeout, s.thumbnailerBin, "thumbnail", argv, thumbPath); err != nil {
		return fmt.Errorf("generate thumbnail: %w", err)
	}
	return nil
}
