package apply

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"fountain/internal/fault"
	"fountain/internal/patch"
)

// Outcome is the per-file result of a fuzzy merge.
type Outcome int

const (
	Applied Outcome = iota
	Unresolved
)

func (o Outcome) String() string {
	if o == Unresolved {
		return "unresolved"
	}
	return "applied"
}

// Job is one patch file to merge into the working tree.
type Job struct {
	File     patch.File
	Target   string // absolute path of the working-tree file
	Baseline string // absolute path of the baseline file
}

// Result records how a Job ended. Tool failures are returned as errors
// instead.
type Result struct {
	Path    string
	Outcome Outcome
	Detail  []string
}

// Merger merges one patch into its target in place.
type Merger interface {
	Name() string
	Merge(ctx context.Context, job Job) (Result, error)
}

// Report aggregates the results of a fuzzy run.
type Report struct {
	Results []Result
}

// HasUnresolved reports whether any file was left with conflicts.
func (r *Report) HasUnresolved() bool {
	return len(r.Unresolved()) > 0
}

// Unresolved lists the paths left with conflicts.
func (r *Report) Unresolved() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, res := range r.Results {
		if res.Outcome == Unresolved {
			out = append(out, res.Path)
		}
	}
	return out
}

// FuzzyOptions configures Fuzzy.
type FuzzyOptions struct {
	Options
	// IgnoreUnresolved records conflicts and keeps going instead of aborting.
	IgnoreUnresolved bool
}

// Fuzzy merges every file of set into the working tree with m. Without
// IgnoreUnresolved the first unresolved file aborts the run with an
// UnresolvedConflictError. Tool errors are always fatal.
func Fuzzy(ctx context.Context, set *patch.Set, m Merger, opt FuzzyOptions) (*Report, error) {
	log := opt.logger()
	report := &Report{}
	if set.Len() == 0 {
		log.Info("---- No patches to apply")
		return report, nil
	}
	log.Info("---- Wiggling patches", zap.String("merger", m.Name()), zap.Int("files", set.Len()))
	for _, f := range set.Files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		job := Job{
			File:     f,
			Target:   filepath.Join(opt.Output, filepath.FromSlash(f.Target)),
			Baseline: filepath.Join(opt.Baseline, filepath.FromSlash(f.Target)),
		}
		res, err := m.Merge(ctx, job)
		if err != nil {
			return report, err
		}
		res.Path = f.Target
		report.Results = append(report.Results, res)
		if res.Outcome == Unresolved {
			if !opt.IgnoreUnresolved {
				return report, &fault.UnresolvedConflictError{Path: f.Target, Detail: res.Detail}
			}
			log.Warn("unresolved conflicts found while wiggling", zap.String("path", f.Target+patch.Suffix))
			continue
		}
		if !opt.Quiet {
			log.Info("successfully wiggled", zap.String("path", f.Target))
		}
	}
	if report.HasUnresolved() {
		log.Warn("unresolved conflicts found, please manually resolve", zap.Strings("paths", report.Unresolved()))
	} else {
		log.Info("all patches successfully applied")
	}
	return report, nil
}
