package regen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fountain/internal/apply"
	"fountain/internal/diff"
	"fountain/internal/fault"
	"fountain/internal/patch"
	"fountain/internal/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type project struct {
	root string
	opt  Options
}

func newProject(t *testing.T, engine string) project {
	t.Helper()
	root := t.TempDir()
	e, err := diff.Create(engine, nil)
	require.NoError(t, err)
	return project{root: root, opt: Options{
		Baseline:    filepath.Join(root, "work", "unpatched"),
		Revised:     filepath.Join(root, "patched"),
		Patches:     filepath.Join(root, "patches"),
		ProjectRoot: root,
		Context:     diff.DefaultContext,
		Engine:      e,
		Workers:     2,
	}}
}

func write(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, tree.WriteLines(path, lines))
}

func TestRunWritesOnlyChangedFiles(t *testing.T) {
	for _, name := range diff.Available() {
		t.Run(name, func(t *testing.T) {
			p := newProject(t, name)
			write(t, filepath.Join(p.opt.Baseline, "Foo.java"), "a", "b", "c")
			write(t, filepath.Join(p.opt.Baseline, "pkg", "Same.java"), "x")
			write(t, filepath.Join(p.opt.Revised, "Foo.java"), "a", "B", "c")
			write(t, filepath.Join(p.opt.Revised, "pkg", "Same.java"), "x")

			sum, err := Run(context.Background(), p.opt)
			require.NoError(t, err)
			assert.Equal(t, 2, sum.Scanned)
			assert.Equal(t, []string{"Foo.java"}, sum.Written)

			got, err := tree.ReadLines(filepath.Join(p.opt.Patches, "Foo.java.patch"))
			require.NoError(t, err)
			assert.Equal(t, []string{
				"--- work/unpatched/Foo.java",
				"+++ patched/Foo.java",
				"@@ -1,3 +1,3 @@",
				" a",
				"-b",
				"+B",
				" c",
			}, got)
			assert.NoFileExists(t, filepath.Join(p.opt.Patches, "pkg", "Same.java.patch"))
		})
	}
}

func TestRunSkipsHiddenEntries(t *testing.T) {
	p := newProject(t, diff.Plain)
	write(t, filepath.Join(p.opt.Baseline, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, ".DS_Store"), "junk")
	write(t, filepath.Join(p.opt.Revised, ".idea", "workspace.xml"), "junk")
	write(t, filepath.Join(p.opt.Revised, "pkg", ".hidden"), "junk")

	sum, err := Run(context.Background(), p.opt)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Empty(t, sum.Written)
}

// A fuzzy apply leaves rejected hunks and merge backups next to the target.
func TestRunSkipsMergeLeftovers(t *testing.T) {
	p := newProject(t, diff.Plain)
	write(t, filepath.Join(p.opt.Baseline, "pkg", "A.java"), "a", "b")
	write(t, filepath.Join(p.opt.Revised, "pkg", "A.java"), "a", "B")
	write(t, filepath.Join(p.opt.Revised, "pkg", "A.java.rej"), "@@ -1,1 +1,1 @@", "-q", "+w")
	write(t, filepath.Join(p.opt.Revised, "pkg", "A.java.porig"), "a", "b")

	sum, err := Run(context.Background(), p.opt)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, []string{"pkg/A.java"}, sum.Written)
	assert.NoFileExists(t, filepath.Join(p.opt.Patches, "pkg", "A.java.rej.patch"))
}

func TestRunMissingOriginal(t *testing.T) {
	p := newProject(t, diff.Plain)
	write(t, filepath.Join(p.opt.Baseline, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, "New.java"), "n")

	_, err := Run(context.Background(), p.opt)
	var missing *fault.MissingOriginalError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "New.java", missing.Original)
}

func TestRunLeavesStalePatches(t *testing.T) {
	p := newProject(t, diff.Plain)
	write(t, filepath.Join(p.opt.Baseline, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, "A.java"), "a")
	stale := filepath.Join(p.opt.Patches, "Gone.java.patch")
	write(t, stale, "@@ -1,1 +1,1 @@", "-x", "+y")

	_, err := Run(context.Background(), p.opt)
	require.NoError(t, err)
	assert.FileExists(t, stale)
}

// Applying the regenerated patches to the baseline must reproduce the edited
// tree, and regenerating again must produce byte-identical patches.
func TestRoundTripAndIdempotence(t *testing.T) {
	p := newProject(t, diff.Available()[0])
	base := []string{"package a;", "", "class A {", "  void f() {}", "  void g() {}", "}"}
	write(t, filepath.Join(p.opt.Baseline, "a", "A.java"), base...)
	write(t, filepath.Join(p.opt.Baseline, "a", "B.java"), base...)
	write(t, filepath.Join(p.opt.Baseline, "C.java"), "only", "lines")

	editedA := []string{"package a;", "", "import x.Y;", "", "class A {", "  void f() { Y.y(); }", "  void g() {}", "}"}
	editedC := []string{"only", "lines", "and more"}
	require.NoError(t, apply.Prepare(apply.Options{Baseline: p.opt.Baseline, Output: p.opt.Revised}))
	write(t, filepath.Join(p.opt.Revised, "a", "A.java"), editedA...)
	write(t, filepath.Join(p.opt.Revised, "C.java"), editedC...)

	first, err := Run(context.Background(), p.opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.java", "a/A.java"}, first.Written)
	snapshot := readTree(t, p.opt.Patches)

	aopt := apply.Options{Baseline: p.opt.Baseline, Output: p.opt.Revised}
	require.NoError(t, apply.Prepare(aopt))
	set, err := patch.Load(p.opt.Patches, p.opt.Baseline)
	require.NoError(t, err)
	require.NoError(t, apply.Strict(set, aopt))

	got, err := tree.ReadLines(filepath.Join(p.opt.Revised, "a", "A.java"))
	require.NoError(t, err)
	assert.Equal(t, editedA, got)
	got, err = tree.ReadLines(filepath.Join(p.opt.Revised, "C.java"))
	require.NoError(t, err)
	assert.Equal(t, editedC, got)

	_, err = Run(context.Background(), p.opt)
	require.NoError(t, err)
	assert.Equal(t, snapshot, readTree(t, p.opt.Patches))
}

func TestRunHonorsCancellation(t *testing.T) {
	p := newProject(t, diff.Plain)
	write(t, filepath.Join(p.opt.Baseline, "A.java"), "a")
	write(t, filepath.Join(p.opt.Revised, "A.java"), "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, p.opt)
	assert.ErrorIs(t, err, context.Canceled)
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	entries, err := tree.Walk(root, tree.WalkOptions{})
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := os.ReadFile(e.AbsPath)
		require.NoError(t, err)
		out[e.RelPath] = string(b)
	}
	return out
}
