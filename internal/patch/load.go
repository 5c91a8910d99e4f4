package patch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fountain/internal/fault"
	"fountain/internal/tree"
)

// Load enumerates root in lexical order and parses every patch below it.
// Each patch's target must exist in baseline. A missing root is an empty
// set; a non-patch file anywhere below root is a configuration error.
func Load(root, baseline string) (*Set, error) {
	set := &Set{Root: root}
	if !tree.IsDir(root) {
		return set, nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasSuffix(rel, Suffix) {
			return &fault.MalformedPatchSetError{Path: rel}
		}
		target := strings.TrimSuffix(rel, Suffix)
		if !tree.Exists(filepath.Join(baseline, filepath.FromSlash(target))) {
			return &fault.MissingOriginalError{Op: "load patches", Source: rel, Original: target}
		}
		f, err := LoadFile(path, target)
		if err != nil {
			return err
		}
		set.Files = append(set.Files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// LoadFile parses one patch file for target.
func LoadFile(path, target string) (File, error) {
	lines, err := tree.ReadLines(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, fault.Configf("load patches", path, "patch file vanished")
		}
		return File{}, err
	}
	hunks, err := Parse(lines)
	if err != nil {
		return File{}, &fault.ConfigError{Op: "parse patch", Path: path, Err: err}
	}
	return File{Target: target, Source: path, Hunks: hunks}, nil
}
