// Package regen recomputes the patch-set from the edited working tree.
package regen

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fountain/internal/diff"
	"fountain/internal/fault"
	"fountain/internal/patch"
	"fountain/internal/tree"
)

// Options configures a regeneration run.
type Options struct {
	Baseline string // unpatched tree
	Revised  string // patched working tree
	Patches  string // output patch root
	// ProjectRoot is the directory the ---/+++ header paths are relative to.
	ProjectRoot string
	Context     int
	Engine      diff.Engine
	Quiet       bool
	// Workers bounds concurrent diff computation; <= 0 means GOMAXPROCS.
	Workers int
	Log     *zap.Logger
}

// Summary reports what a run wrote.
type Summary struct {
	Scanned int
	Written []string // target relative paths with a written patch
}

type job struct {
	entry tree.Entry
	orig  string
	lines []string // nil when the file has no changes
	err   error
}

// leftovers are merge by-products in the working tree that have no baseline.
var leftovers = []string{"**/*.rej", "**/*.porig"}

// Run diffs every non-hidden file of the working tree against its baseline
// and writes "<rel>.patch" for each file that changed. Patches for unchanged
// or deleted files are left alone, and merge leftovers are skipped.
func Run(ctx context.Context, opt Options) (*Summary, error) {
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}
	if !tree.IsDir(opt.Baseline) {
		return nil, fault.Configf("diff", opt.Baseline, "couldn't find unpatched sources")
	}
	if !tree.IsDir(opt.Revised) {
		return nil, fault.Configf("diff", opt.Revised, "no patched files found")
	}
	if opt.Engine == nil {
		return nil, fault.Configf("diff", "", "no diff engine")
	}
	entries, err := tree.Walk(opt.Revised, tree.WalkOptions{SkipHidden: true, Exclude: leftovers})
	if err != nil {
		return nil, err
	}
	jobs := make([]job, len(entries))
	for i, e := range entries {
		orig := filepath.Join(opt.Baseline, filepath.FromSlash(e.RelPath))
		if !tree.Exists(orig) {
			return nil, &fault.MissingOriginalError{Op: "diff", Source: e.RelPath, Original: e.RelPath}
		}
		jobs[i] = job{entry: e, orig: orig}
	}

	log.Info("---- Recomputing patches", zap.String("engine", opt.Engine.Name()), zap.Int("files", len(jobs)))
	g, gctx := errgroup.WithContext(ctx)
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i := range jobs {
		i := i // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			jobs[i].lines, jobs[i].err = diffOne(opt, jobs[i])
			return jobs[i].err
		})
	}
	if err := g.Wait(); err != nil {
		// Report the earliest failing file in walk order, not the first to finish.
		for _, j := range jobs {
			if j.err != nil {
				return nil, j.err
			}
		}
		return nil, err
	}

	sum := &Summary{Scanned: len(jobs)}
	for _, j := range jobs {
		if j.lines == nil {
			continue
		}
		out := filepath.Join(opt.Patches, filepath.FromSlash(j.entry.RelPath)+patch.Suffix)
		if err := tree.WriteLines(out, j.lines); err != nil {
			return sum, fmt.Errorf("write patch for %s: %w", j.entry.RelPath, err)
		}
		sum.Written = append(sum.Written, j.entry.RelPath)
		if !opt.Quiet {
			log.Info("found diff", zap.String("path", j.entry.RelPath))
		}
	}
	return sum, nil
}

func diffOne(opt Options, j job) ([]string, error) {
	a, err := tree.ReadLines(j.orig)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", j.orig, err)
	}
	b, err := tree.ReadLines(j.entry.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", j.entry.AbsPath, err)
	}
	lines := diff.Unified(headerName(opt.ProjectRoot, j.orig), headerName(opt.ProjectRoot, j.entry.AbsPath),
		opt.Engine.Diff(a, b), opt.Context)
	if diff.IsEmpty(lines) {
		return nil, nil
	}
	return lines, nil
}

// headerName renders path relative to root with forward slashes, falling back
// to the path itself when it lies outside root.
func headerName(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	absRoot, err1 := filepath.Abs(root)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
