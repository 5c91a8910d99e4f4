// Package diff computes line edit scripts through a pluggable engine and
// renders them as unified diffs.
//
// Two engines exist: "native" (github.com/sergi/go-diff, line mode) is
// preferred; "plain" (github.com/pmezard/go-difflib SequenceMatcher) is the
// slower fallback. The native engine is left out of builds tagged
// fountain_purego, which is how its absence is exercised.
package diff

import (
	"fmt"
	"sort"

	"fountain/internal/fault"
)

const (
	Native = "native"
	Plain  = "plain"
)

// Preferred is tried first when the caller names no implementation.
const Preferred = Native

// Fallback is used, with a warning, when Preferred is unavailable.
const Fallback = Plain

// Tag classifies an Op, using difflib's letters.
type Tag byte

const (
	Equal   Tag = 'e'
	Replace Tag = 'r'
	Delete  Tag = 'd'
	Insert  Tag = 'i'
)

// Op maps A[I1:I2] onto B[J1:J2].
type Op struct {
	Tag    Tag
	I1, I2 int
	J1, J2 int
}

// Script is an edit script turning A into B.
type Script struct {
	A, B []string
	Ops  []Op
}

// Changed reports whether the script contains any non-equal op.
func (s Script) Changed() bool {
	for _, op := range s.Ops {
		if op.Tag != Equal {
			return true
		}
	}
	return false
}

// Engine computes edit scripts between line sequences. Implementations must
// be safe for concurrent use.
type Engine interface {
	Name() string
	Diff(a, b []string) Script
}

var registry = map[string]func() Engine{}

func register(name string, fn func() Engine) { registry[name] = fn }

// Available lists the implementations compiled into this binary.
func Available() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Create returns the named engine. An empty name selects Preferred, falling
// back to Fallback after calling warn. A named but unavailable engine is an
// error: explicit requests are never downgraded.
func Create(name string, warn func(string)) (Engine, error) {
	if name != "" {
		fn, ok := registry[name]
		if !ok {
			return nil, fault.Configf("diff", "", "unable to load %s diff implementation (available: %v)", name, Available())
		}
		return fn(), nil
	}
	if fn, ok := registry[Preferred]; ok {
		return fn(), nil
	}
	if warn != nil {
		warn(fmt.Sprintf("unable to load %s diff implementation, diffs will be noticeably slower", Preferred))
	}
	fn, ok := registry[Fallback]
	if !ok {
		return nil, fault.Configf("diff", "", "no diff implementation available")
	}
	return fn(), nil
}
