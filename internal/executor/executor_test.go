package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain re-execs this test binary as a fake block command when
// GO_WANT_HELPER_PROCESS is set, the standard library's own pattern for
// testing os/exec callers without depending on real system binaries.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	switch os.Getenv("HELPER_BEHAVIOR") {
	case "fail":
		os.Exit(1)
	case "no_output":
		os.Exit(0)
	default: // "success": write the argv the executor invoked us with, for inspection
		outputPath := os.Getenv("HELPER_OUTPUT_PATH")
		_ = os.WriteFile(outputPath, []byte(joinArgs(os.Args[1:])), 0o644)
		os.Exit(0)
	}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += "\x1f"
		}
		out += a
	}
	return out
}

func helperCommand(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe
}

func TestRunSuccessProducesOutputFile(t *testing.T) {
	exe := helperCommand(t)
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.png")

	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	os.Setenv("HELPER_OUTPUT_PATH", outputPath)
	defer os.Unsetenv("GO_WANT_HELPER_PROCESS")
	defer os.Unsetenv("HELPER_OUTPUT_PATH")

	spec := ArgvSpec{
		Command:    exe,
		BlockName:  "invert",
		InputPaths: []string{"/tmp/in.png"},
		OutputPath: outputPath,
		Positional: []string{"5"},
	}

	result, err := Run(t.Context(), time.Second, spec)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.FileExists(t, outputPath)
}

func TestRunFailureRemovesPartialOutput(t *testing.T) {
	exe := helperCommand(t)
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(outputPath, []byte("partial"), 0o644))

	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	os.Setenv("HELPER_BEHAVIOR", "fail")
	defer os.Unsetenv("GO_WANT_HELPER_PROCESS")
	defer os.Unsetenv("HELPER_BEHAVIOR")

	spec := ArgvSpec{Command: exe, BlockName: "invert", OutputPath: outputPath}
	_, err := Run(t.Context(), time.Second, spec)
	require.Error(t, err)
	assert.NoFileExists(t, outputPath)
}

func TestRunZeroExitWithoutOutputFileIsFailure(t *testing.T) {
	exe := helperCommand(t)
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "missing.png")

	os.Setenv("GO_WANT_HELPER_PROCESS", "1")
	os.Setenv("HELPER_BEHAVIOR", "no_output")
	defer os.Unsetenv("GO_WANT_HELPER_PROCESS")
	defer os.Unsetenv("HELPER_BEHAVIOR")

	spec := ArgvSpec{Command: exe, BlockName: "invert", OutputPath: outputPath}
	_, err := Run(t.Context(), time.Second, spec)
	require.Error(t, err)
}

func TestTokenizePreservesQuotedWhitespace(t *testing.T) {
	tokens, err := tokenize(`--label "hello world" --flag`)
	require.NoError(t, err)
	assert.Equal(t, []string{"--label", "hello world", "--flag"}, tokens)
}

func TestBuildArgvDropsEmptyElements(t *testing.T) {
	spec := ArgvSpec{
		BlockName:        "invert",
		InputPaths:       []string{"/a.png", ""},
		OutputPath:       "/b.png",
		Positional:       []string{"", "5"},
		TemplateFragment: "",
	}
	argv, err := buildArgv(spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"invert", "/a.png", "/b.png", "5"}, argv)
}

func TestBuildArgvTokenizesTemplateFragment(t *testing.T) {
	spec := ArgvSpec{
		BlockName:        "blur",
		OutputPath:       "/out.png",
		TemplateFragment: `-r "3 px"`,
	}
	argv, err := buildArgv(spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"blur", "/out.png", "-r", "3 px"}, argv)
}
