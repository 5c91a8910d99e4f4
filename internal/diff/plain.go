package diff

import (
	difflib "github.com/pmezard/go-difflib/difflib"
)

func init() { register(Plain, newPlain) }

type plainEngine struct{}

func newPlain() Engine { return plainEngine{} }

func (plainEngine) Name() string { return Plain }

// Diff uses SequenceMatcher without the auto-junk heuristic so frequent lines
// such as "}" still anchor matches.
func (plainEngine) Diff(a, b []string) Script {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	codes := m.GetOpCodes()
	ops := make([]Op, 0, len(codes))
	for _, c := range codes {
		ops = append(ops, Op{Tag: Tag(c.Tag), I1: c.I1, I2: c.I2, J1: c.J1, J2: c.J2})
	}
	return Script{A: a, B: b, Ops: ops}
}
