// Package tool runs external collaborators (build tool, decompiler, merge
// tool) behind a small port so pipeline stages can be tested with fakes.
package tool

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"fountain/internal/fault"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// Argv returns the full argument vector for messages.
func (c Command) Argv() []string { return append([]string{c.Name}, c.Args...) }

// Result captures a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands. A non-zero exit is reported through Result, not
// as an error; errors mean the process could not run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *zap.Logger
}

// Run starts cmd and waits for it.
func (r ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if r.Log != nil {
		r.Log.Debug("exec", zap.Strings("argv", cmd.Argv()), zap.String("dir", cmd.Dir))
	}
	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// LookPath resolves name on PATH.
func (ExecRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Check runs cmd and converts any failure into an ExternalToolError.
func Check(ctx context.Context, r Runner, op string, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return res, &fault.ExternalToolError{Op: op, Args: cmd.Argv(), Err: err}
	}
	if res.ExitCode != 0 {
		return res, &fault.ExternalToolError{
			Op:       op,
			Args:     cmd.Argv(),
			ExitCode: res.ExitCode,
			Output:   fault.PreferredOutput(res.Stdout, res.Stderr),
		}
	}
	return res, nil
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// Expand builds a Command from an argv template, substituting {name}
// placeholders from vars. Unknown placeholders are a configuration error.
func Expand(template []string, vars map[string]string) (Command, error) {
	if len(template) == 0 {
		return Command{}, fault.Configf("expand command", "", "empty command template")
	}
	out := make([]string, len(template))
	for i, arg := range template {
		var missing string
		out[i] = placeholderRe.ReplaceAllStringFunc(arg, func(m string) string {
			key := m[1 : len(m)-1]
			v, ok := vars[key]
			if !ok && missing == "" {
				missing = key
			}
			return v
		})
		if missing != "" {
			return Command{}, fault.Configf("expand command", "", "unknown placeholder {%s} in %q", missing, strings.Join(template, " "))
		}
	}
	return Command{Name: out[0], Args: out[1:]}, nil
}
