package apply

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"fountain/internal/fault"
	"fountain/internal/patch"
	"fountain/internal/tool"
	"fountain/internal/tree"
)

const (
	MergerWiggle    = "wiggle"
	MergerInProcess = "inprocess"
)

// SelectMerger resolves a merger by name. An empty name prefers wiggle when
// it is on PATH and otherwise warns and falls back to the in-process merger.
func SelectMerger(name string, r tool.Runner, warn func(string)) (Merger, error) {
	switch name {
	case "":
		if _, err := r.LookPath(MergerWiggle); err == nil {
			return &Wiggle{Runner: r}, nil
		}
		if warn != nil {
			warn("wiggle command not found in PATH, using the in-process merger")
		}
		return InProcess{}, nil
	case MergerWiggle:
		if _, err := r.LookPath(MergerWiggle); err != nil {
			return nil, fault.Configf("select merger", "", "wiggle command not found in PATH; %s", wiggleInstallHint())
		}
		return &Wiggle{Runner: r}, nil
	case MergerInProcess:
		return InProcess{}, nil
	}
	return nil, fault.Configf("select merger", "", "unknown merger %q (available: %s, %s)", name, MergerWiggle, MergerInProcess)
}

func wiggleInstallHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "please install wiggle with Homebrew, available from https://brew.sh"
	case "windows":
		return "wiggle isn't supported on windows"
	}
	return "please install wiggle with your system package manager (apt-get, pacman, etc)"
}

// Wiggle merges with the external wiggle binary.
type Wiggle struct {
	Runner tool.Runner
	Dir    string // working directory for the process
}

func (*Wiggle) Name() string { return MergerWiggle }

// Merge runs "wiggle --replace <target> <patch>". Exit status 1 means the
// target now carries conflict markers.
func (w *Wiggle) Merge(ctx context.Context, job Job) (Result, error) {
	backups := []string{job.Baseline, job.File.Source, job.Target}
	removeBackups(backups...)
	defer removeBackups(backups...)

	cmd := tool.Command{
		Name: MergerWiggle,
		Args: []string{"--replace", job.Target, job.File.Source},
		Dir:  w.Dir,
	}
	res, err := w.Runner.Run(ctx, cmd)
	if err != nil {
		return Result{}, &fault.ExternalToolError{Op: "wiggle " + job.File.Target, Args: cmd.Argv(), Err: err}
	}
	out := fault.PreferredOutput(res.Stdout, res.Stderr)
	switch res.ExitCode {
	case 0:
		return Result{Outcome: Applied}, nil
	case 1:
		var detail []string
		if out != "" {
			detail = strings.Split(out, "\n")
		}
		return Result{Outcome: Unresolved, Detail: detail}, nil
	}
	return Result{}, &fault.ExternalToolError{
		Op:       "wiggle " + job.File.Target,
		Args:     cmd.Argv(),
		ExitCode: res.ExitCode,
		Output:   out,
	}
}

// removeBackups deletes wiggle's "<file>.porig" copies.
func removeBackups(files ...string) {
	for _, f := range files {
		if f != "" {
			_ = os.Remove(f + ".porig")
		}
	}
}

// InProcess merges with diff-match-patch. Each hunk is located near its
// recorded offset with fuzzy matching; hunks that cannot be placed are
// written to "<target>.rej" and leave the file unresolved.
type InProcess struct{}

func (InProcess) Name() string { return MergerInProcess }

func (InProcess) Merge(ctx context.Context, job Job) (Result, error) {
	rejPath := job.Target + ".rej"
	if err := tree.Remove(rejPath); err != nil {
		return Result{}, err
	}
	lines, err := tree.ReadLines(job.Target)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", job.File.Target, err)
	}
	text := string(tree.JoinLines(lines))

	dmp := diffmatchpatch.New()
	var rejected []patch.Hunk
	delta := 0
	for _, h := range job.File.Hunks {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		orig := string(tree.JoinLines(h.Original()))
		rev := string(tree.JoinLines(h.Revised()))
		if orig == rev {
			continue
		}
		patches := dmp.PatchMake(orig, rev)
		off := byteOffset(text, h.OrigIndex()+delta)
		for i := range patches {
			patches[i].Start1 += off
			patches[i].Start2 += off
		}
		merged, ok := dmp.PatchApply(patches, text)
		if !allApplied(ok) {
			rejected = append(rejected, h)
			continue
		}
		text = merged
		delta += h.RevLen - h.OrigLen
	}

	if err := os.WriteFile(job.Target, []byte(text), 0o644); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", job.File.Target, err)
	}
	if len(rejected) == 0 {
		return Result{Outcome: Applied}, nil
	}
	rej := patch.Format(job.File.Target, job.File.Target, rejected)
	if err := tree.WriteLines(rejPath, rej); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", rejPath, err)
	}
	return Result{
		Outcome: Unresolved,
		Detail: []string{fmt.Sprintf("%d of %d hunks rejected, see %s",
			len(rejected), len(job.File.Hunks), rejPath)},
	}, nil
}

func allApplied(ok []bool) bool {
	for _, b := range ok {
		if !b {
			return false
		}
	}
	return true
}

// byteOffset returns the byte offset of the 0-based line n in text, clamped
// to the text length.
func byteOffset(text string, n int) int {
	if n <= 0 {
		return 0
	}
	off := 0
	for i := 0; i < n; i++ {
		j := strings.IndexByte(text[off:], '\n')
		if j < 0 {
			return len(text)
		}
		off += j + 1
	}
	return off
}
