// Package executor runs approved commands as isolated child processes.
// Execution is serialized: one command at a time per engine, so ledger
// entries stay causally ordered and output attribution never interleaves.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"mvdan.cc/sh/v3/syntax"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// Engine implements ports.Executor.
type Engine struct {
	shell     string
	maxOutput int
	log       ports.Logger

	mu sync.Mutex // serializes executions
}

// New builds an engine. shell defaults to /bin/sh, maxOutput to the
// domain default.
func New(shell string, maxOutput int, log ports.Logger) *Engine {
	if shell == "" {
		shell = "/bin/sh"
	}
	if maxOutput <= 0 {
		maxOutput = domain.DefaultMaxOutputBytes
	}
	return &Engine{shell: shell, maxOutput: maxOutput, log: log}
}

// Execute runs rawText and captures its outcome. The child gets its own
// process group and a scrubbed environment; on timeout or cancellation
// the whole group is killed, not asked to exit, since a hung or hostile
// command cannot be trusted to terminate itself.
func (e *Engine) Execute(ctx context.Context, rawText string, timeout time.Duration, onOutput func(domain.OutputChunk)) (domain.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timeout <= 0 {
		timeout = domain.DefaultExecutionTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := e.buildCommand(runCtx, rawText)
	cmd.Env = scrubbedEnv()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 5 * time.Second
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}

	stdout := newCappedWriter(e.maxOutput, "stdout", onOutput)
	stderr := newCappedWriter(e.maxOutput, "stderr", onOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := domain.ExecutionResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  duration,
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.log.Warn("execution timed out", map[string]interface{}{"timeout": timeout.String()})
		return result, fmt.Errorf("%w after %s", domain.ErrExecutionTimeout, timeout)
	case errors.Is(runCtx.Err(), context.Canceled):
		return result, domain.ErrExecutionCancelled
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("%w: %v", domain.ErrSpawnFailure, err)
	}
	return result, nil
}

// buildCommand prefers a direct argv spawn so no second interpreter sees
// the text. Commands that use shell features (pipes, redirects,
// expansions) and programs only an interpreter can run go through the
// configured shell with the exact raw text.
func (e *Engine) buildCommand(ctx context.Context, rawText string) *exec.Cmd {
	if argv, ok := splitArgv(rawText); ok && directSpawnable(argv[0]) {
		return exec.CommandContext(ctx, argv[0], argv[1:]...)
	}
	return exec.CommandContext(ctx, e.shell, "-c", rawText)
}

// shellBuiltins have no binary on PATH; spawning them directly would fail
// even though the command is perfectly runnable.
var shellBuiltins = map[string]bool{
	".": true, "alias": true, "bg": true, "cd": true, "exec": true,
	"exit": true, "export": true, "fg": true, "hash": true, "jobs": true,
	"read": true, "set": true, "shift": true, "source": true, "times": true,
	"trap": true, "type": true, "ulimit": true, "umask": true,
	"unalias": true, "unset": true, "wait": true,
}

// directSpawnable reports whether name can run without the shell. Bare
// names that do not resolve on PATH go through the shell too, so a typo
// surfaces as the shell's exit 127 rather than a spawn failure. Explicit
// paths always spawn directly; a missing file there is a real fault.
func directSpawnable(name string) bool {
	if shellBuiltins[name] {
		return false
	}
	if strings.Contains(name, "/") {
		return true
	}
	_, err := exec.LookPath(name)
	return err == nil
}

// splitArgv returns the literal argument vector when rawText is a single
// plain command: one call, literal words only, no redirects, no
// expansions, no background job.
func splitArgv(rawText string) ([]string, bool) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(rawText), "")
	if err != nil || len(file.Stmts) != 1 {
		return nil, false
	}
	stmt := file.Stmts[0]
	if len(stmt.Redirs) > 0 || stmt.Background || stmt.Negated || stmt.Coprocess {
		return nil, false
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Assigns) > 0 || len(call.Args) == 0 {
		return nil, false
	}

	argv := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		lit, ok := literalWord(word)
		if !ok {
			return nil, false
		}
		argv = append(argv, lit)
	}
	return argv, true
}

func literalWord(word *syntax.Word) (string, bool) {
	var builder strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if strings.ContainsAny(p.Value, "*?[{~") {
				return "", false // globs need the shell
			}
			builder.WriteString(p.Value)
		case *syntax.SglQuoted:
			builder.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				builder.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return builder.String(), true
}

// scrubbedEnv passes only the variables a child needs to behave sanely;
// the operator's full environment stays out of reach.
func scrubbedEnv() []string {
	keep := []string{"PATH", "HOME", "LANG", "LC_ALL", "TERM", "TMPDIR", "USER"}
	env := make([]string, 0, len(keep))
	for _, key := range keep {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

// killGroup terminates the child and all of its descendants.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}

var _ ports.Executor = (*Engine)(nil)
