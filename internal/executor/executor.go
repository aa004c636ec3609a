// Package executor implements the Executor (EX): assembling an argv
// vector for a block's external command and running it as a subprocess,
// never through a shell.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"vipspatchbay/internal/store"
)

// ArgvSpec carries everything the Pipeline Evaluator has already decided
// about one execution: the command to run, the resolved input paths, the
// freshly allocated output path, and the two already-computed parameter
// fragments (spec.md §4.2 step d):
//
//   - Positional holds the first (len(gui_fields) - P) mapped settings, in
//     gui_fields order, to be appended as bare argv tokens.
//   - TemplateFragment holds the printf-formatted string produced from the
//     remaining P settings and parameter_template; the Executor is
//     responsible for tokenizing it with shell-style, quote-aware word
//     splitting, never with an actual shell.
type ArgvSpec struct {
	Command          string
	BlockName        string
	InputPaths       []string
	OutputPath       string
	Positional       []string
	TemplateFragment string
}

// Result carries the combined stdout+stderr the subprocess produced, kept
// for diagnostics even on success.
type Result struct {
	Output   string
	ExitCode int
}

// Run builds the argv vector per spec.md §4.2 step (g):
//
//	[command, block_name, input_paths…, output_path, positional_values…, templated_tokens…]
//
// drops any empty elements, and invokes it through RunArgv.
func Run(ctx context.Context, timeout time.Duration, spec ArgvSpec) (Result, error) {
	argv, err := buildArgv(spec)
	if err != nil {
		return Result{}, fmt.Errorf("build argv: %w", err)
	}
	return RunArgv(ctx, timeout, spec.Command, spec.BlockName, argv, spec.OutputPath)
}

// RunArgv spawns command with the given argv vector and no shell
// interpolation anywhere in the path. It merges stderr into the same pipe
// as stdout (draining it fully before the process is reaped, to avoid a
// PIPE stall) and requires both a zero exit code and the output file's
// presence on disk to call the run successful. On either failure it
// removes any partial output file. label is used only for logging
// (the Executor passes the block name, the Thumbnail Service its own
// description of the call).
func RunArgv(ctx context.Context, timeout time.Duration, command, label string, argv []string, outputPath string) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command, argv...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	slog.Debug("executor invoking command", "command", command, "label", label, "argv", argv)

	runErr := cmd.Run()
	output := combined.String()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	outputExists := store.Exists(outputPath)

	if runErr != nil || !outputExists {
		_ = store.Remove(outputPath)
		slog.Warn("executor run failed",
			"command", command,
			"label", label,
			"exit_code", exitCode,
			"output_exists", outputExists,
			"output", truncate(output, 2000),
		)
		if runErr != nil {
			return Result{Output: output, ExitCode: exitCode}, fmt.Errorf("subprocess failed: %w", runErr)
		}
		return Result{Output: output, ExitCode: exitCode}, fmt.Errorf("subprocess exited 0 but produced no output file")
	}

	return Result{Output: output, ExitCode: exitCode}, nil
}

// buildArgv assembles the final argument vector, tokenizing the
// already-formatted template fragment with quote-aware word splitting and
// dropping empty/undefined elements.
func buildArgv(spec ArgvSpec) ([]string, error) {
	argv := make([]string, 0, 4+len(spec.InputPaths)+len(spec.Positional))

	appendNonEmpty := func(values ...string) {
		for _, v := range values {
			if v != "" {
				argv = append(argv, v)
			}
		}
	}

	appendNonEmpty(spec.BlockName)
	appendNonEmpty(spec.InputPaths...)
	appendNonEmpty(spec.OutputPath)
	appendNonEmpty(spec.Positional...)

	if spec.TemplateFragment != "" {
		tokens, err := tokenize(spec.TemplateFragment)
		if err != nil {
			return nil, fmt.Errorf("tokenize parameter template: %w", err)
		}
		appendNonEmpty(tokens...)
	}

	return argv, nil
}

// tokenize performs shell-style, quote-aware word splitting without
// invoking a shell: whitespace separates tokens, matched quotes preserve
// whitespace inside a token. This is the one place settings/filenames
// text is parsed into argv elements, so it must never be handed to
// exec via a shell.
func tokenize(s string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false
	tokens, err := parser.Parse(s)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
