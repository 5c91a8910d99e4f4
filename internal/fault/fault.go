// Package fault defines the error taxonomy shared by the patch pipeline.
//
// Every fatal error carries the relative path and the operation being
// attempted so the CLI can print a single descriptive line. Callers match
// kinds with errors.As / errors.Is; nothing here is retried.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolved is matched by errors.Is for any UnresolvedConflictError.
var ErrUnresolved = errors.New("unresolved conflicts")

// ConfigError reports missing or malformed inputs.
type ConfigError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("invalid configuration")
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError with a formatted cause.
func Configf(op, path, format string, args ...any) error {
	return &ConfigError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// MissingOriginalError is raised when a patch or revised file has no baseline
// counterpart.
type MissingOriginalError struct {
	Op       string
	Source   string // patch file or revised file that needed the baseline
	Original string // expected baseline relative path
}

func (e *MissingOriginalError) Error() string {
	return fmt.Sprintf("%s: couldn't find original %s for %s", e.Op, e.Original, e.Source)
}

// As lets errors.As(err, **ConfigError) match a missing original.
func (e *MissingOriginalError) As(target any) bool {
	if t, ok := target.(**ConfigError); ok {
		*t = &ConfigError{Op: e.Op, Path: e.Original, Err: errors.New("missing original")}
		return true
	}
	return false
}

// MalformedPatchSetError is raised when the patch root contains a file that is
// not a patch.
type MalformedPatchSetError struct {
	Path string
}

func (e *MalformedPatchSetError) Error() string {
	return fmt.Sprintf("load patches: patch file doesn't end with '.patch': %s", e.Path)
}

func (e *MalformedPatchSetError) As(target any) bool {
	if t, ok := target.(**ConfigError); ok {
		*t = &ConfigError{Op: "load patches", Path: e.Path, Err: errors.New("not a patch file")}
		return true
	}
	return false
}

// PatchConflictError is raised by the strict applier when hunk context does not
// match the baseline at the recorded offset.
type PatchConflictError struct {
	Path   string // target relative path
	Hunk   int    // 1-based hunk index
	Line   int    // 1-based baseline line number of the mismatch
	Reason string
}

func (e *PatchConflictError) Error() string {
	return fmt.Sprintf("unable to apply %s.patch: hunk #%d at line %d: %s", e.Path, e.Hunk, e.Line, e.Reason)
}

// UnresolvedConflictError is raised by the fuzzy applier when a merge left
// conflicts behind.
type UnresolvedConflictError struct {
	Path   string
	Detail []string
}

func (e *UnresolvedConflictError) Error() string {
	msg := fmt.Sprintf("unresolved conflicts found while wiggling %s.patch", e.Path)
	if len(e.Detail) > 0 {
		msg += "\n" + strings.Join(e.Detail, "\n")
	}
	return msg
}

func (e *UnresolvedConflictError) Is(target error) bool { return target == ErrUnresolved }

// ExternalToolError is raised when a collaborator process exits non-zero.
type ExternalToolError struct {
	Op       string
	Args     []string
	ExitCode int
	Output   string // stderr, or stdout when stderr was empty
	Err      error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s: error executing command %q", e.Op, strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// PreferredOutput returns stderr when it carries text, otherwise stdout.
func PreferredOutput(stdout, stderr string) string {
	if strings.TrimSpace(stderr) != "" {
		return strings.TrimSpace(stderr)
	}
	return strings.TrimSpace(stdout)
}
