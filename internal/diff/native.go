//go:build !fountain_purego

package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func init() { register(Native, newNative) }

type nativeEngine struct{}

func newNative() Engine { return nativeEngine{} }

func (nativeEngine) Name() string { return Native }

// Diff reduces every line to a single rune so diffmatchpatch works on whole
// lines, then reads op sizes back as rune counts.
func (nativeEngine) Diff(a, b []string) Script {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	chars1, chars2, _ := dmp.DiffLinesToChars(joinLF(a), joinLF(b))
	diffs := dmp.DiffMain(chars1, chars2, false)

	var ops []Op
	i, j := 0, 0
	del, ins := 0, 0
	flush := func() {
		if del == 0 && ins == 0 {
			return
		}
		tag := Replace
		switch {
		case ins == 0:
			tag = Delete
		case del == 0:
			tag = Insert
		}
		ops = append(ops, Op{Tag: tag, I1: i, I2: i + del, J1: j, J2: j + ins})
		i += del
		j += ins
		del, ins = 0, 0
	}
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			del += n
		case diffmatchpatch.DiffInsert:
			ins += n
		case diffmatchpatch.DiffEqual:
			flush()
			ops = append(ops, Op{Tag: Equal, I1: i, I2: i + n, J1: j, J2: j + n})
			i += n
			j += n
		}
	}
	flush()
	return Script{A: a, B: b, Ops: ops}
}

func joinLF(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
