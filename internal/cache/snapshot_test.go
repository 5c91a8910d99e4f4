package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "work", FileName))
	rec, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestSaveRoundTripRecognizedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := NewStore(path)
	require.NoError(t, s.Save(Record{
		StageRangeMap:  {Key: "c1"},
		StageForkBuild: {Key: "c2"},
		StageClasspath: {Key: "c3", Metadata: map[string][]string{MetaClasspath: {"g:a:1", "g:b:2"}}},
		StageDecompile: {Key: "1.12.2"},
		StageUnmapped:  {Key: "f00d"},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "c1", doc["rangeMapCommit"])
	assert.Equal(t, "c2", doc["lastBuiltFork"])
	assert.Equal(t, "c3", doc["classpathCommit"])
	assert.Equal(t, "1.12.2", doc["decompiledVersion"])
	assert.Equal(t, "f00d", doc["unmappedSources"])
	_, hasUnshaded := doc["unshadedCommit"]
	assert.False(t, hasUnshaded, "absent keys must be omitted")

	fresh := NewStore(path)
	e, ok, err := fresh.Get(StageClasspath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"g:a:1", "g:b:2"}, e.Metadata[MetaClasspath])
}

func TestLoadReturnsIndependentCopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, s.Put(StageClasspath, "c", map[string][]string{MetaClasspath: {"x"}}))

	rec, err := s.Load()
	require.NoError(t, err)
	rec[StageClasspath].Metadata[MetaClasspath][0] = "mutated"
	delete(rec, StageClasspath)

	e, ok, err := s.Get(StageClasspath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", e.Metadata[MetaClasspath][0])
}

func TestFailedSaveKeepsMemoizedCopy(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, FileName))
	require.NoError(t, s.Put(StageForkBuild, "old", nil))

	// A directory in place of the document makes the final rename fail.
	blocked := NewStore(filepath.Join(dir, "blocked"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "blocked", "child"), 0o755))
	_, err := blocked.Load()
	require.Error(t, err)
	err = blocked.Save(Record{StageForkBuild: {Key: "new"}})
	require.Error(t, err)
	_, ok, _ := blocked.Get(StageForkBuild)
	assert.False(t, ok, "an unsuccessful save must not be visible")

	matches, _ := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	assert.Empty(t, matches, "temporary files must be cleaned up")
}

func TestUnknownStageRejected(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), FileName))
	err := s.Put(Stage("bogus"), "k", nil)
	assert.True(t, errors.Is(err, ErrUnknownStage))
	assert.Error(t, s.Put(StageRangeMap, "k", map[string][]string{"extra": {"v"}}))
}

func TestReusable(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "rangeMap.dat")
	s := NewStore(filepath.Join(dir, FileName))

	ok, err := s.Reusable(StageRangeMap, "abc", artifact)
	require.NoError(t, err)
	assert.False(t, ok, "no entry")

	require.NoError(t, s.Put(StageRangeMap, "abc", nil))
	ok, _ = s.Reusable(StageRangeMap, "abc", artifact)
	assert.False(t, ok, "artifact missing")

	require.NoError(t, os.WriteFile(artifact, []byte("x"), 0o644))
	ok, _ = s.Reusable(StageRangeMap, "abc", artifact)
	assert.True(t, ok)

	ok, _ = s.Reusable(StageRangeMap, "def", artifact)
	assert.False(t, ok, "key mismatch")
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := NewStore(path)
	require.NoError(t, s.Put(StageUnshaded, "c", nil))
	require.NoError(t, s.Remove())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	rec, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, rec)
	require.NoError(t, s.Remove())
}
