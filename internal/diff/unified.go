package diff

import (
	"fmt"
	"strings"
)

// DefaultContext is the number of context lines written around each change.
const DefaultContext = 5

// Unified renders s as a classic unified diff (---/+++ headers, @@ hunks,
// lines prefixed with ' ', '-', '+'). Both range lengths are always written.
// A script without changes renders as no lines at all.
func Unified(origName, revName string, s Script, context int) []string {
	if context < 0 {
		context = DefaultContext
	}
	groups := groupOps(s.Ops, context)
	if len(groups) == 0 {
		return nil
	}
	out := []string{"--- " + origName, "+++ " + revName}
	for _, g := range groups {
		first, last := g[0], g[len(g)-1]
		out = append(out, fmt.Sprintf("@@ -%s +%s @@",
			formatRange(first.I1, last.I2), formatRange(first.J1, last.J2)))
		for _, op := range g {
			if op.Tag == Equal {
				for _, l := range s.A[op.I1:op.I2] {
					out = append(out, " "+l)
				}
				continue
			}
			if op.Tag == Replace || op.Tag == Delete {
				for _, l := range s.A[op.I1:op.I2] {
					out = append(out, "-"+l)
				}
			}
			if op.Tag == Replace || op.Tag == Insert {
				for _, l := range s.B[op.J1:op.J2] {
					out = append(out, "+"+l)
				}
			}
		}
	}
	return out
}

// IsEmpty reports whether no rendered line carries visible text.
func IsEmpty(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// formatRange converts a half-open 0-based range into "start,length". An
// empty range starts at the line before it (0 at the top of the file).
func formatRange(start, stop int) string {
	length := stop - start
	if length == 0 {
		return fmt.Sprintf("%d,0", start)
	}
	return fmt.Sprintf("%d,%d", start+1, length)
}

// groupOps isolates change clusters with up to n lines of context, merging
// clusters separated by at most 2n equal lines.
func groupOps(ops []Op, n int) [][]Op {
	codes := make([]Op, 0, len(ops))
	for _, op := range ops {
		if op.I1 == op.I2 && op.J1 == op.J2 {
			continue
		}
		codes = append(codes, op)
	}
	changed := false
	for _, op := range codes {
		if op.Tag != Equal {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	if c := codes[0]; c.Tag == Equal {
		codes[0] = Op{Tag: Equal, I1: max(c.I1, c.I2-n), I2: c.I2, J1: max(c.J1, c.J2-n), J2: c.J2}
	}
	if c := codes[len(codes)-1]; c.Tag == Equal {
		codes[len(codes)-1] = Op{Tag: Equal, I1: c.I1, I2: min(c.I2, c.I1+n), J1: c.J1, J2: min(c.J2, c.J1+n)}
	}
	var groups [][]Op
	var group []Op
	for _, c := range codes {
		i1, j1 := c.I1, c.J1
		if c.Tag == Equal && c.I2-c.I1 > 2*n {
			group = append(group, Op{Tag: Equal, I1: i1, I2: min(c.I2, i1+n), J1: j1, J2: min(c.J2, j1+n)})
			groups = append(groups, group)
			group = nil
			i1, j1 = max(i1, c.I2-n), max(j1, c.J2-n)
		}
		group = append(group, Op{Tag: c.Tag, I1: i1, I2: c.I2, J1: j1, J2: c.J2})
	}
	if len(group) > 0 && !(len(group) == 1 && group[0].Tag == Equal) {
		groups = append(groups, group)
	}
	for gi, g := range groups {
		trimmed := g[:0]
		for _, op := range g {
			if op.I1 == op.I2 && op.J1 == op.J2 {
				continue
			}
			trimmed = append(trimmed, op)
		}
		groups[gi] = trimmed
	}
	return groups
}
