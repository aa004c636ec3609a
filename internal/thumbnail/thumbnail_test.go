package thumbnail

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vipspatchbay/internal/store"
)

// TestMain re-execs this test binary as the thumbnailer when
// GO_WANT_HELPER_PROCESS is set, the same os/exec-faking idiom
// executor_test.go uses.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	// os.Args[1:] is exactly the argv the Service invoked us with:
	// [source, target, width, ...constraints].
	args := os.Args[1:]

	switch os.Getenv("HELPER_BEHAVIOR") {
	case "fail":
		os.Exit(1)
	case "no_output":
		os.Exit(0)
	default: // "success": write the target file (argv[1])
		if len(args) < 2 {
			os.Exit(1)
		}
		_ = os.WriteFile(args[1], []byte("thumbnail"), 0o644)
		os.Exit(0)
	}
}

func helperCommand(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe
}

func withHelperEnv(t *testing.T, behavior string) {
	t.Helper()
	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	if behavior != "" {
		os.Setenv("HELPER_BEHAVIOR", behavior)
	}
	t.Cleanup(func() {
		os.Unsetenv("GO_WANT_HELPER_PROCESS")
		os.Unsetenv("HELPER_BEHAVIOR")
	})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPathForInvokesThumbnailerOnFirstCall(t *testing.T) {
	s := newTestStore(t)
	id := "3fa85f64-5717-4562-b3fc-2c963f66afa6"
	sourcePath := filepath.Join(s.Root(), id+".jpg")
	require.NoError(t, os.WriteFile(sourcePath, []byte("source"), 0o644))

	withHelperEnv(t, "")
	svc := New(s, helperCommand(t), nil, time.Second)

	path, err := svc.PathFor(t.Context(), id, 200)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, s.ThumbnailPath(id, 200), path)
}

func TestPathForReusesExistingThumbnail(t *testing.T) {
	s := newTestStore(t)
	id := "3fa85f64-5717-4562-b3fc-2c963f66afa6"
	sourcePath := filepath.Join(s.Root(), id+".jpg")
	require.NoError(t, os.WriteFile(sourcePath, []byte("source"), 0o644))

	withHelperEnv(t, "")
	svc := New(s, helperCommand(t), nil, time.Second)

	first, err := svc.PathFor(t.Context(), id, 100)
	require.NoError(t, err)

	// A second call must not re-invoke the thumbnailer: switch the
	// helper to fail so a regenerate attempt would surface as an error.
	os.Setenv("HELPER_BEHAVIOR", "fail")
	second, err := svc.PathFor(t.Context(), id, 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPathForMissingSourceFails(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, helperCommand(t), nil, time.Second)

	_, err := svc.PathFor(t.Context(), "3fa85f64-5717-4562-b3fc-2c963f66afa6", 200)
	assert.Error(t, err)
}

func TestPathForThumbnailerFailureIsPropagated(t *testing.T) {
	s := newTestStore(t)
	id := "3fa85f64-5717-4562-b3fc-2c963f66afa6"
	sourcePath := filepath.Join(s.Root(), id+".jpg")
	require.NoError(t, os.WriteFile(sourcePath, []byte("source"), 0o644))

	withHelperEnv(t, "fail")
	svc := New(s, helperCommand(t), nil, time.Second)

	_, err := svc.PathFor(t.Context(), id, 200)
	assert.Error(t, err)
	assert.NoFileExists(t, s.ThumbnailPath(id, 200))
}

func TestNewDefaultsBinary(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, "", nil, time.Second)
	assert.Equal(t, "vipsthumbnail", svc.thumbnailerBin)
}
