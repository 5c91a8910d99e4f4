// Package patch models a patch-set: one unified-diff file per target below a
// root directory, named "<relative/path>.patch".
package patch

import "fmt"

// Suffix is appended to a target's relative path to name its patch file.
const Suffix = ".patch"

// LineKind tags a hunk line with its unified-diff prefix.
type LineKind byte

const (
	Context LineKind = ' '
	Insert  LineKind = '+'
	Delete  LineKind = '-'
)

// Line is one tagged hunk line without its prefix.
type Line struct {
	Kind LineKind
	Text string
}

// String renders the line with its prefix.
func (l Line) String() string { return string(l.Kind) + l.Text }

// Hunk is one contiguous change region. Starts are 1-based; an empty range
// starts at the line before the change.
type Hunk struct {
	OrigStart, OrigLen int
	RevStart, RevLen   int
	Lines              []Line
}

// Header renders the "@@ -s,l +s,l @@" line.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OrigStart, h.OrigLen, h.RevStart, h.RevLen)
}

// Original returns the lines the hunk expects in the baseline.
func (h Hunk) Original() []string {
	out := make([]string, 0, h.OrigLen)
	for _, l := range h.Lines {
		if l.Kind != Insert {
			out = append(out, l.Text)
		}
	}
	return out
}

// Revised returns the lines the hunk produces.
func (h Hunk) Revised() []string {
	out := make([]string, 0, h.RevLen)
	for _, l := range h.Lines {
		if l.Kind != Delete {
			out = append(out, l.Text)
		}
	}
	return out
}

// OrigIndex is the 0-based baseline index where the hunk's original lines
// begin.
func (h Hunk) OrigIndex() int {
	if h.OrigLen == 0 {
		return h.OrigStart
	}
	return h.OrigStart - 1
}

// File is the ordered hunks targeting one relative path.
type File struct {
	Target string // target relative path, forward slashes
	Source string // absolute path of the .patch file
	Hunks  []Hunk
}

// Set is the patch-set loaded from one root, in enumeration order.
type Set struct {
	Root  string
	Files []File
}

// Len returns the number of patch files.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Files)
}
