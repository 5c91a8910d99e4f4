// Package cache persists, per pipeline stage, the key under which the stage's
// output was last produced.
package cache

import (
	"errors"
	"fmt"
	"slices"
)

// Stage names a cache-gated step of the setup pipeline.
type Stage string

const (
	StageForkBuild Stage = "fork-build"
	StageUnshaded  Stage = "unshaded"
	StageClasspath Stage = "classpath"
	StageDecompile Stage = "decompile"
	StageRangeMap  Stage = "range-map"
	StageUnmapped  Stage = "unmapped"
)

// MetaClasspath is the only metadata key that round-trips (classpath stage).
const MetaClasspath = "classpath"

// ErrUnknownStage is returned when a stage has no field in the cache document.
var ErrUnknownStage = errors.New("unknown cache stage")

// Entry is the cached state of one stage: its key (commit hash, version,
// content hash) and stage-specific metadata.
type Entry struct {
	Key      string
	Metadata map[string][]string
}

// Record maps stage names to their entries.
type Record map[Stage]Entry

// Clone deep-copies the record so callers cannot alias the memoized copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for st, e := range r {
		ce := Entry{Key: e.Key}
		if e.Metadata != nil {
			ce.Metadata = make(map[string][]string, len(e.Metadata))
			for k, v := range e.Metadata {
				ce.Metadata[k] = slices.Clone(v)
			}
		}
		out[st] = ce
	}
	return out
}

// document is the on-disk shape. Only these fields are ever serialized;
// absent values are omitted.
type document struct {
	RangeMapCommit    string   `json:"rangeMapCommit,omitempty"`
	LastBuiltFork     string   `json:"lastBuiltFork,omitempty"`
	Classpath         []string `json:"classpath,omitempty"`
	ClasspathCommit   string   `json:"classpathCommit,omitempty"`
	UnshadedCommit    string   `json:"unshadedCommit,omitempty"`
	DecompiledVersion string   `json:"decompiledVersion,omitempty"`
	UnmappedSources   string   `json:"unmappedSources,omitempty"`
}

func knownStage(st Stage) bool {
	switch st {
	case StageForkBuild, StageUnshaded, StageClasspath, StageDecompile, StageRangeMap, StageUnmapped:
		return true
	}
	return false
}

// validate rejects entries that could not survive a save/load cycle.
func validate(r Record) error {
	for st, e := range r {
		if !knownStage(st) {
			return fmt.Errorf("%w: %q", ErrUnknownStage, st)
		}
		for k := range e.Metadata {
			if st != StageClasspath || k != MetaClasspath {
				return fmt.Errorf("stage %q: unsupported metadata key %q", st, k)
			}
		}
	}
	return nil
}

func fromDocument(d document) Record {
	r := make(Record)
	put := func(st Stage, key string) {
		if key != "" {
			r[st] = Entry{Key: key}
		}
	}
	put(StageRangeMap, d.RangeMapCommit)
	put(StageForkBuild, d.LastBuiltFork)
	put(StageUnshaded, d.UnshadedCommit)
	put(StageDecompile, d.DecompiledVersion)
	put(StageUnmapped, d.UnmappedSources)
	if d.ClasspathCommit != "" || len(d.Classpath) > 0 {
		e := Entry{Key: d.ClasspathCommit}
		if len(d.Classpath) > 0 {
			e.Metadata = map[string][]string{MetaClasspath: slices.Clone(d.Classpath)}
		}
		r[StageClasspath] = e
	}
	return r
}

func toDocument(r Record) document {
	var d document
	d.RangeMapCommit = r[StageRangeMap].Key
	d.LastBuiltFork = r[StageForkBuild].Key
	d.UnshadedCommit = r[StageUnshaded].Key
	d.DecompiledVersion = r[StageDecompile].Key
	d.UnmappedSources = r[StageUnmapped].Key
	cp := r[StageClasspath]
	d.ClasspathCommit = cp.Key
	d.Classpath = slices.Clone(cp.Metadata[MetaClasspath])
	return d
}
