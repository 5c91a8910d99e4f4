// Package blacklist excludes decompiled sources that do not compile from the
// generated tree. Entries are bare class names without extension.
package blacklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"fountain/internal/fault"
	"fountain/internal/tree"
)

// DefaultScope selects the files a blacklist entry can name.
const DefaultScope = "net/minecraft/server/*.java"

// Filter combines the persisted list with the supplementary set.
type Filter struct {
	Persisted  []string
	Additional []string
	// Scope is a doublestar pattern, relative to a tree root, selecting the
	// files entries refer to. Empty means DefaultScope.
	Scope string
	Log   *zap.Logger
}

func (f Filter) scope() string {
	if f.Scope == "" {
		return DefaultScope
	}
	return f.Scope
}

func (f Filter) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}

// IDs returns the sorted union of both sets. Entries listed in both are
// reported as a warning.
func (f Filter) IDs() []string {
	set := make(map[string]struct{}, len(f.Persisted)+len(f.Additional))
	for _, id := range f.Persisted {
		set[id] = struct{}{}
	}
	var overlap []string
	for _, id := range f.Additional {
		if _, dup := set[id]; dup {
			overlap = append(overlap, id)
		}
		set[id] = struct{}{}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		f.logger().Warn("supplementary blacklist entries already persisted", zap.Strings("ids", overlap))
	}
	return sortedKeys(set)
}

// CheckFork fails when any entry names a file that exists in the fork's
// sources, since the fork is authoritative for those files.
func (f Filter) CheckFork(forkSource string) error {
	if forkSource == "" || !tree.IsDir(forkSource) {
		return nil
	}
	present, err := stems(forkSource, f.scope())
	if err != nil {
		return err
	}
	var conflicts []string
	for _, id := range f.IDs() {
		if _, ok := present[id]; ok {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return fault.Configf("check blacklist", forkSource,
			"blacklisted files exist in the fork: %s", strings.Join(conflicts, ", "))
	}
	return nil
}

// Apply deletes blacklisted files below root and returns how many it removed.
func (f Filter) Apply(root string) (int, error) {
	ids := make(map[string]struct{})
	for _, id := range f.IDs() {
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), f.scope(), doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("blacklist scope %q: %w", f.scope(), err)
	}
	sort.Strings(matches)
	removed := 0
	for _, m := range matches {
		if _, ok := ids[stem(m)]; !ok {
			continue
		}
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(m))); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Load reads a persisted list. A missing file is an empty list.
func Load(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, &fault.ConfigError{Op: "load blacklist", Path: path, Err: err}
	}
	return ids, nil
}

// Save writes ids as a sorted JSON array.
func Save(path string, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	if sorted == nil {
		sorted = []string{}
	}
	b, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// errorReport is the compile error report: {"errors": {"Foo.java": [...]}}.
type errorReport struct {
	Errors map[string][]string `json:"errors"`
}

func loadErrorReport(op, path string) (errorReport, error) {
	var rep errorReport
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return rep, fault.Configf(op, path, "missing decompile error report")
	}
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, &fault.ConfigError{Op: op, Path: path, Err: err}
	}
	return rep, nil
}

// Errors returns the reported compile errors of one source file. name may
// omit the ".java" extension. A file without errors yields nil.
func Errors(errorsPath, name string) ([]string, error) {
	rep, err := loadErrorReport("print errors", errorsPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, ".java") {
		name += ".java"
	}
	return rep.Errors[name], nil
}

// Regenerate rebuilds the persisted list from the compile error report plus
// the supplementary set, checks it against the fork and writes it to out.
func Regenerate(errorsPath, out string, f Filter, forkSource string) ([]string, error) {
	rep, err := loadErrorReport("regenerate blacklist", errorsPath)
	if err != nil {
		return nil, err
	}
	persisted := make([]string, 0, len(rep.Errors))
	for name := range rep.Errors {
		persisted = append(persisted, stem(name))
	}
	f.Persisted = persisted
	if err := f.CheckFork(forkSource); err != nil {
		return nil, err
	}
	ids := f.IDs()
	if err := Save(out, ids); err != nil {
		return nil, err
	}
	f.logger().Info("regenerated blacklist", zap.Int("files", len(ids)), zap.String("path", out))
	return ids, nil
}

func stems(root, pattern string) (map[string]struct{}, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("blacklist scope %q: %w", pattern, err)
	}
	out := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		out[stem(m)] = struct{}{}
	}
	return out, nil
}

func stem(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
