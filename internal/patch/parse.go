package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Parse reads the hunks of a unified diff. Lines outside hunks (---/+++
// headers, trailers) are ignored; "\ No newline" markers are skipped. Hunk
// bodies must match the lengths declared in their headers.
func Parse(lines []string) ([]Hunk, error) {
	var hunks []Hunk
	for i := 0; i < len(lines); {
		if !strings.HasPrefix(lines[i], "@@") {
			i++
			continue
		}
		h, next, err := parseHunk(lines, i)
		if err != nil {
			return nil, err
		}
		if n := len(hunks); n > 0 {
			prev := hunks[n-1]
			if h.OrigIndex() < prev.OrigIndex()+prev.OrigLen {
				return nil, fmt.Errorf("line %d: hunk overlaps or precedes previous hunk", i+1)
			}
		}
		hunks = append(hunks, h)
		i = next
	}
	return hunks, nil
}

func parseHunk(lines []string, at int) (Hunk, int, error) {
	m := hunkHeaderRe.FindStringSubmatch(lines[at])
	if m == nil {
		return Hunk{}, 0, fmt.Errorf("line %d: malformed hunk header %q", at+1, lines[at])
	}
	h := Hunk{
		OrigStart: atoi(m[1], 0),
		OrigLen:   atoi(m[2], 1),
		RevStart:  atoi(m[3], 0),
		RevLen:    atoi(m[4], 1),
	}
	orig, rev := 0, 0
	i := at + 1
	for ; i < len(lines) && (orig < h.OrigLen || rev < h.RevLen); i++ {
		l := lines[i]
		if strings.HasPrefix(l, `\`) {
			continue
		}
		kind := Context
		text := ""
		if l != "" {
			kind = LineKind(l[0])
			text = l[1:]
		}
		switch kind {
		case Context:
			orig++
			rev++
		case Delete:
			orig++
		case Insert:
			rev++
		default:
			return Hunk{}, 0, fmt.Errorf("line %d: unexpected hunk line %q", i+1, l)
		}
		h.Lines = append(h.Lines, Line{Kind: kind, Text: text})
	}
	for i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		i++
	}
	if orig != h.OrigLen || rev != h.RevLen {
		return Hunk{}, 0, fmt.Errorf("line %d: hunk %s has %d original and %d revised lines",
			at+1, strings.TrimSpace(m[0]), orig, rev)
	}
	return h, i, nil
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Format renders hunks as a unified diff with the given names.
func Format(origName, revName string, hunks []Hunk) []string {
	out := []string{"--- " + origName, "+++ " + revName}
	for _, h := range hunks {
		out = append(out, h.Header())
		for _, l := range h.Lines {
			out = append(out, l.String())
		}
	}
	return out
}
