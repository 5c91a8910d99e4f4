package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var knownMergers = []string{"", "wiggle", "inprocess"}

// Validate checks the settings and reports every problem at once:
//
//   - directory settings must be non-empty, relative paths must not escape
//     the project root
//   - diff.context >= 0
//   - merger is empty, "wiggle" or "inprocess"
//   - blacklist.scope and decompile.include are valid doublestar patterns
//   - no tool template is empty or starts with an empty program name
func (c Config) Validate() error {
	var errs errlist

	dirs := []struct{ key, val string }{
		{"work_dir", c.WorkDir},
		{"patches_dir", c.PatchesDir},
		{"patched_dir", c.PatchedDir},
		{"fork_dir", c.ForkDir},
		{"build_data_dir", c.BuildDataDir},
	}
	for _, d := range dirs {
		if strings.TrimSpace(d.val) == "" {
			errs.add("%s must be non-empty", d.key)
			continue
		}
		if !filepath.IsAbs(d.val) && hasDotDot(d.val) {
			errs.add("%s must not contain '..' segments (got %q)", d.key, d.val)
		}
	}
	if c.PatchesDir != "" && filepath.Clean(c.PatchesDir) == filepath.Clean(c.PatchedDir) {
		errs.add("patches_dir and patched_dir must differ (both %q)", c.PatchesDir)
	}

	if c.Diff.Context != nil && *c.Diff.Context < 0 {
		errs.add("diff.context must be >= 0 (got %d)", *c.Diff.Context)
	}

	known := false
	for _, m := range knownMergers {
		if c.Merger == m {
			known = true
		}
	}
	if !known {
		errs.add("merger must be one of wiggle, inprocess (got %q)", c.Merger)
	}

	if c.Blacklist.Scope != "" && !doublestar.ValidatePattern(c.Blacklist.Scope) {
		errs.add("blacklist.scope: bad pattern %q", c.Blacklist.Scope)
	}
	for i, id := range c.Blacklist.Additional {
		if strings.ContainsAny(id, `/\.`) || strings.TrimSpace(id) == "" {
			errs.add("blacklist.additional[%d]: must be a bare class name (got %q)", i, id)
		}
	}
	for i, p := range c.Decompile.Include {
		if !doublestar.ValidatePattern(p) {
			errs.add("decompile.include[%d]: bad pattern %q", i, p)
		}
	}

	tools := map[string][]string{
		"build_fork":        c.Tools.BuildFork,
		"clean_fork":        c.Tools.CleanFork,
		"unshade":           c.Tools.Unshade,
		"decompile":         c.Tools.Decompile,
		"range_extract":     c.Tools.RangeExtract,
		"generate_mappings": c.Tools.GenerateMappings,
		"apply_mappings":    c.Tools.ApplyMappings,
		"dependency_tree":   c.Tools.DependencyTree,
	}
	for _, name := range sortedKeys(tools) {
		argv := tools[name]
		if len(argv) > 0 && strings.TrimSpace(argv[0]) == "" {
			errs.add("tools.%s: program name must be non-empty", name)
		}
	}

	return errs.err()
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
