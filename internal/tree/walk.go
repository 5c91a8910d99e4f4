// Package tree reads and writes source trees: directories of relative path to
// line-sequence content. Line endings are normalized on read and '\n' is
// re-appended on write so line-based diff and patch stay platform independent.
package tree

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Entry is one regular file below a tree root.
type Entry struct {
	RelPath string // root-relative path with forward slashes
	AbsPath string
}

// WalkOptions controls which entries Walk reports.
type WalkOptions struct {
	// SkipHidden skips files and directories whose base name starts with '.'.
	SkipHidden bool
	// Exclude holds doublestar patterns matched against RelPath; matching
	// directories are pruned.
	Exclude []string
}

type walkState struct {
	opt   WalkOptions
	root  string
	files []Entry
}

// Walk returns the regular files below root sorted by RelPath.
func Walk(root string, opt WalkOptions) ([]Entry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, p := range opt.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, &fs.PathError{Op: "walk", Path: p, Err: doublestar.ErrBadPattern}
		}
	}
	state := &walkState{opt: opt, root: abs}
	if err := filepath.WalkDir(abs, state.visit); err != nil {
		return nil, err
	}
	sort.Slice(state.files, func(i, j int) bool { return state.files[i].RelPath < state.files[j].RelPath })
	return state.files, nil
}

func (ws *walkState) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if path == ws.root {
		return nil
	}
	rel, err := filepath.Rel(ws.root, path)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)
	if ws.shouldSkip(rel, d) {
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}
	if !d.Type().IsRegular() {
		return nil
	}
	ws.files = append(ws.files, Entry{RelPath: rel, AbsPath: path})
	return nil
}

func (ws *walkState) shouldSkip(rel string, d fs.DirEntry) bool {
	if ws.opt.SkipHidden && strings.HasPrefix(d.Name(), ".") {
		return true
	}
	for _, p := range ws.opt.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
