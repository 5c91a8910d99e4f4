// Package apply turns a baseline tree plus a patch-set into the patched
// working tree, either strictly (exact context) or through a fuzzy merger.
package apply

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"fountain/internal/fault"
	"fountain/internal/patch"
	"fountain/internal/tree"
)

// Options locates the trees an applier reads and writes.
type Options struct {
	Baseline string // unpatched tree root
	Output   string // patched tree root
	Quiet    bool   // suppress per-file success lines
	Log      *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// Prepare clears the output tree and re-populates it with a copy of the
// baseline.
func Prepare(opt Options) error {
	log := opt.logger()
	if !tree.IsDir(opt.Baseline) {
		return fault.Configf("prepare patched sources", opt.Baseline, "couldn't find unpatched sources")
	}
	if tree.Exists(opt.Output) {
		log.Info("---- Clearing existing patched sources")
		if err := tree.Remove(opt.Output); err != nil {
			return fmt.Errorf("clear %s: %w", opt.Output, err)
		}
	}
	log.Info("---- Copying unpatched sources into patched directory")
	if err := tree.Copy(opt.Baseline, opt.Output); err != nil {
		return fmt.Errorf("copy baseline: %w", err)
	}
	return nil
}

// Strict applies every file of set in order. The first conflict aborts the
// run; files written before it stay written.
func Strict(set *patch.Set, opt Options) error {
	log := opt.logger()
	if set.Len() == 0 {
		log.Info("---- No patches to apply")
		return nil
	}
	log.Info("---- Applying patches", zap.Int("files", set.Len()))
	for _, f := range set.Files {
		orig, err := tree.ReadLines(filepath.Join(opt.Baseline, filepath.FromSlash(f.Target)))
		if err != nil {
			return fmt.Errorf("read baseline %s: %w", f.Target, err)
		}
		out, err := ApplyHunks(orig, f)
		if err != nil {
			return err
		}
		if err := tree.WriteLines(filepath.Join(opt.Output, filepath.FromSlash(f.Target)), out); err != nil {
			return fmt.Errorf("write %s: %w", f.Target, err)
		}
		if !opt.Quiet {
			log.Info("applied patch", zap.String("path", f.Target), zap.Int("hunks", len(f.Hunks)))
		}
	}
	return nil
}

// ApplyHunks applies f's hunks to orig, requiring every context and deleted
// line to match at the hunk's recorded offset.
func ApplyHunks(orig []string, f patch.File) ([]string, error) {
	out := make([]string, 0, len(orig))
	pos := 0
	for i, h := range f.Hunks {
		idx := h.OrigIndex()
		if idx < pos || idx > len(orig) {
			return nil, &fault.PatchConflictError{
				Path: f.Target, Hunk: i + 1, Line: idx + 1,
				Reason: fmt.Sprintf("hunk starts outside the file (%d lines)", len(orig)),
			}
		}
		out = append(out, orig[pos:idx]...)
		for k, want := range h.Original() {
			at := idx + k
			if at >= len(orig) {
				return nil, &fault.PatchConflictError{
					Path: f.Target, Hunk: i + 1, Line: at + 1,
					Reason: fmt.Sprintf("expected %q, found end of file", want),
				}
			}
			if orig[at] != want {
				return nil, &fault.PatchConflictError{
					Path: f.Target, Hunk: i + 1, Line: at + 1,
					Reason: fmt.Sprintf("expected %q, found %q", want, orig[at]),
				}
			}
		}
		out = append(out, h.Revised()...)
		pos = idx + h.OrigLen
	}
	return append(out, orig[pos:]...), nil
}
