// Package exec runs submitted source through locally installed toolchains.
// There is no sandbox: each run gets a fresh temporary directory and a wall
// clock budget, nothing more.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codesync/collab/internal/core"
	"github.com/codesync/collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Toolchain describes how one language is built and run. Argument lists may
// reference {src}, {bin} and {dir}; they are expanded per run.
type Toolchain struct {
	Source  string
	Compile []string
	Run     []string
}

// DefaultToolchains mirrors the languages the editor offers.
func DefaultToolchains() map[string]Toolchain {
	js := Toolchain{Source: "main.js", Run: []string{"node", "{src}"}}
	py := Toolchain{Source: "main.py", Run: []string{"python3", "{src}"}}
	c := Toolchain{Source: "main.c", Compile: []string{"gcc", "{src}", "-o", "{bin}"}, Run: []string{"{bin}"}}
	cpp := Toolchain{Source: "main.cpp", Compile: []string{"g++", "{src}", "-o", "{bin}"}, Run: []string{"{bin}"}}
	return map[string]Toolchain{
		"javascript": js,
		"js":         js,
		"node":       js,
		"python":     py,
		"py":         py,
		"java": {
			Source:  "Main.java",
			Compile: []string{"javac", "{src}"},
			Run:     []string{"java", "-cp", "{dir}", "Main"},
		},
		"c":   c,
		"cpp": cpp,
		"c++": cpp,
		"go":  {Source: "main.go", Run: []string{"go", "run", "{src}"}},
	}
}

type Runner struct {
	Timeout    time.Duration
	WorkDir    string
	Toolchains map[string]Toolchain
}

var _ core.CodeExecutor = (*Runner)(nil)

func NewRunner(timeout time.Duration, workDir string) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{Timeout: timeout, WorkDir: workDir, Toolchains: DefaultToolchains()}
}

// Execute builds and runs code. Compiler and runtime failures are reported in
// ExecResult.Error; the returned error is reserved for unsupported languages,
// timeouts and failures of the runner itself.
func (r *Runner) Execute(ctx context.Context, code, language string) (core.ExecResult, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	tc, ok := r.Toolchains[lang]
	if !ok {
		return core.ExecResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, language)
	}

	dir, err := os.MkdirTemp(r.WorkDir, "run-")
	if err != nil {
		return core.ExecResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Str("module", "exec.runner").Str("dir", dir).Err(err).Msg("cleanup failed")
		}
	}()

	src := filepath.Join(dir, tc.Source)
	if err := os.WriteFile(src, []byte(code), 0o600); err != nil {
		return core.ExecResult{}, fmt.Errorf("write source: %w", err)
	}
	expand := strings.NewReplacer("{src}", src, "{bin}", filepath.Join(dir, "main.bin"), "{dir}", dir)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if len(tc.Compile) > 0 {
		_, stderr, err := r.run(ctx, dir, expand, tc.Compile)
		if err != nil {
			if ctx.Err() != nil {
				return core.ExecResult{Error: r.timeoutMessage()}, domain.ErrExecTimeout
			}
			return core.ExecResult{Error: failure(stderr, err)}, nil
		}
	}

	stdout, stderr, err := r.run(ctx, dir, expand, tc.Run)
	if ctx.Err() != nil {
		return core.ExecResult{Output: stdout, Error: r.timeoutMessage()}, domain.ErrExecTimeout
	}
	if err != nil {
		return core.ExecResult{Output: stdout, Error: failure(stderr, err)}, nil
	}
	return core.ExecResult{Output: stdout, Error: stderr}, nil
}

func (r *Runner) run(ctx context.Context, dir string, expand *strings.Replacer, argv []string) (string, string, error) {
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = expand.Replace(a)
	}
	cmd := osexec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (r *Runner) timeoutMessage() string {
	return fmt.Sprintf("execution timed out after %s", r.Timeout)
}

func failure(stderr string, err error) string {
	if stderr != "" {
		return stderr
	}
	var notFound *osexec.Error
	if errors.As(err, &notFound) {
		return fmt.Sprintf("%s not found on the server", notFound.Name)
	}
	return err.Error()
}
