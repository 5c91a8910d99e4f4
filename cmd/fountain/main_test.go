package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"fountain/internal/fault"
	"fountain/internal/logging"
	"fountain/internal/tool"
)

const fooJava = "package net.minecraft.server;\n\nclass Foo {\n    int a;\n}\n"

type project struct {
	root string
	logs bytes.Buffer
}

func newProject(t *testing.T) *project {
	t.Helper()
	p := &project{root: t.TempDir()}
	p.write(t, "fountain.yaml", "minecraft_version: \"1.12.2\"\n")
	p.write(t, "work/unpatched/net/minecraft/server/Foo.java", fooJava)
	p.write(t, "work/unpatched/net/minecraft/server/Bar.java", "class Bar {}\n")
	return p
}

func (p *project) path(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p *project) write(t *testing.T, rel, body string) {
	t.Helper()
	full := p.path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	b, err := os.ReadFile(p.path(rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

// exec runs the CLI against the project and returns the exit status and
// everything written to stdout and stderr.
func (p *project) exec(t *testing.T, runner tool.Runner, args ...string) (int, string, string) {
	t.Helper()
	a := &app{
		runner: runner,
		newLogger: func(o logging.Options) (*zap.Logger, error) {
			return logging.NewWriter(&p.logs, o), nil
		},
	}
	var stdout, stderr bytes.Buffer
	args = append(args, "--config", p.path("fountain.yaml"))
	code := run(a, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const conflictingPatch = `--- a/net/minecraft/server/Foo.java
+++ b/net/minecraft/server/Foo.java
@@ -1,1 +1,1 @@
-qqqqqqqqqqqqqqqqqqqq
+wwwwwwwwwwwwwwwwwwww
`

func TestRootCommand(t *testing.T) {
	root := newApp().rootCmd()
	if root.Use != "fountain" {
		t.Fatalf("Use = %q", root.Use)
	}
	want := []string{
		"classpath", "clean", "diff", "generate-fixes", "patch", "print-errors",
		"regenerate-blacklist", "remap-source", "restore-blacklisted", "setup", "wiggle",
	}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("missing command %s: %v", name, err)
		}
		if cmd.RunE == nil {
			t.Errorf("%s has no RunE", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("verbose") == nil {
		t.Fatalf("missing global flags")
	}
}

func TestPatchDiffCycle(t *testing.T) {
	p := newProject(t)

	if code, _, stderr := p.exec(t, nil, "patch"); code != 0 {
		t.Fatalf("patch: exit %d: %s", code, stderr)
	}
	if got := p.read(t, "patched/net/minecraft/server/Foo.java"); got != fooJava {
		t.Fatalf("patched copy differs:\n%s", got)
	}

	edited := strings.Replace(fooJava, "    int a;\n", "    int a;\n    int b; // fork\n", 1)
	p.write(t, "patched/net/minecraft/server/Foo.java", edited)
	if code, _, stderr := p.exec(t, nil, "diff"); code != 0 {
		t.Fatalf("diff: exit %d: %s", code, stderr)
	}
	body := p.read(t, "patches/net/minecraft/server/Foo.java.patch")
	if !strings.Contains(body, "+    int b; // fork") {
		t.Fatalf("patch body:\n%s", body)
	}
	if _, err := os.Stat(p.path("patches/net/minecraft/server/Bar.java.patch")); !os.IsNotExist(err) {
		t.Fatalf("unchanged file produced a patch: %v", err)
	}

	// patch starts from a fresh copy of the baseline
	p.write(t, "patched/net/minecraft/server/Foo.java", "garbage\n")
	if code, _, stderr := p.exec(t, nil, "patch", "--quiet"); code != 0 {
		t.Fatalf("patch: exit %d: %s", code, stderr)
	}
	if got := p.read(t, "patched/net/minecraft/server/Foo.java"); got != edited {
		t.Fatalf("patched file:\n%s", got)
	}
}

func TestPatchConflictIsFatal(t *testing.T) {
	p := newProject(t)
	p.write(t, "patches/net/minecraft/server/Foo.java.patch", conflictingPatch)

	code, _, stderr := p.exec(t, nil, "patch")
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(stderr, "Foo.java") {
		t.Fatalf("stderr does not name the file: %s", stderr)
	}
}

func TestWiggleExitStatus(t *testing.T) {
	p := newProject(t)
	p.write(t, "patches/net/minecraft/server/Foo.java.patch", conflictingPatch)

	if code, _, _ := p.exec(t, nil, "wiggle", "--merger", "inprocess"); code != 1 {
		t.Fatalf("without --ignore-unresolved: exit %d, want 1", code)
	}
	code, _, stderr := p.exec(t, nil, "wiggle", "--merger", "inprocess", "--ignore-unresolved")
	if code != 2 {
		t.Fatalf("with --ignore-unresolved: exit %d, want 2 (%s)", code, stderr)
	}
	if _, err := os.Stat(p.path("patched/net/minecraft/server/Foo.java.rej")); err != nil {
		t.Fatalf("rejected hunks not saved: %v", err)
	}
}

func TestWiggleUsesWiggleWhenInstalled(t *testing.T) {
	p := newProject(t)
	p.write(t, "patches/net/minecraft/server/Foo.java.patch", conflictingPatch)
	fake := &tool.Fake{Paths: map[string]string{"wiggle": "/usr/bin/wiggle"}}

	if code, _, stderr := p.exec(t, fake, "wiggle"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if fake.Count("wiggle") != 1 {
		t.Fatalf("wiggle ran %d times", fake.Count("wiggle"))
	}
}

func TestDiffFlags(t *testing.T) {
	p := newProject(t)
	if code, _, _ := p.exec(t, nil, "patch"); code != 0 {
		t.Fatalf("patch failed")
	}
	if code, _, _ := p.exec(t, nil, "diff", "--context=-1"); code != 1 {
		t.Fatalf("negative context: exit %d", code)
	}
	if code, _, stderr := p.exec(t, nil, "diff", "--implementation", "bogus"); code != 1 || !strings.Contains(stderr, "bogus") {
		t.Fatalf("unknown engine: exit %d: %s", code, stderr)
	}
	if code, _, stderr := p.exec(t, nil, "diff", "--implementation", "plain", "--context", "0"); code != 0 {
		t.Fatalf("plain engine: exit %d: %s", code, stderr)
	}
}

func TestMissingConfigIsFatal(t *testing.T) {
	p := newProject(t)
	if err := os.Remove(p.path("fountain.yaml")); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := p.exec(t, nil, "patch")
	if code != 1 || !strings.Contains(stderr, "fountain.yaml") {
		t.Fatalf("exit %d: %s", code, stderr)
	}
}

func TestRegenerateBlacklist(t *testing.T) {
	p := newProject(t)
	p.write(t, "fountain.yaml", "minecraft_version: \"1.12.2\"\nblacklist:\n  additional: [Extra]\n")
	p.write(t, "buildData/errors.json", `{"errors": {"Zed.java": ["x"], "Alpha.java": ["y"]}}`)

	if code, _, stderr := p.exec(t, nil, "regenerate-blacklist"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	got := p.read(t, "buildData/decompile_blacklist.json")
	for _, id := range []string{"Alpha", "Extra", "Zed"} {
		if !strings.Contains(got, fmt.Sprintf("%q", id)) {
			t.Fatalf("missing %s in %s", id, got)
		}
	}
	if strings.Index(got, "Alpha") > strings.Index(got, "Zed") {
		t.Fatalf("list not sorted: %s", got)
	}
}

func TestClasspath(t *testing.T) {
	p := newProject(t)
	repo, err := git.PlainInit(p.path("TacoSpigot"), false)
	if err != nil {
		t.Fatal(err)
	}
	p.write(t, "TacoSpigot/pom.xml", "<project/>\n")
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("pom.xml"); err != nil {
		t.Fatal(err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatal(err)
	}

	fake := &tool.Fake{Handler: func(tool.Command) (tool.Result, error) {
		return tool.Result{Stdout: "[INFO] --- maven-dependency-plugin:2.8:tree\n" +
			"[INFO] +- com.google.guava:guava:jar:21.0:compile\n" +
			"[INFO] ----------\n"}, nil
	}}
	code, stdout, stderr := p.exec(t, fake, "classpath")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "com.google.guava:guava:21.0\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestPrintErrors(t *testing.T) {
	p := newProject(t)
	p.write(t, "buildData/errors.json", `{"errors": {"Block.java": ["bad cast", "missing symbol"]}}`)

	code, stdout, stderr := p.exec(t, nil, "print-errors", "Block")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	want := "Found 2 errors for Block.java\nERROR: bad cast\nERROR: missing symbol\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
	if _, stdout, _ := p.exec(t, nil, "print-errors", "Chunk.java"); stdout != "Found 0 errors for Chunk.java\n" {
		t.Fatalf("stdout = %q", stdout)
	}
	if code, _, _ := p.exec(t, nil, "print-errors"); code != 1 {
		t.Fatalf("missing argument: exit %d", code)
	}
}

func TestGenerateFixes(t *testing.T) {
	p := newProject(t)
	p.write(t, "work/unfixed/net/minecraft/server/Foo.java", fooJava)
	p.write(t, "work/unmapped/net/minecraft/server/Foo.java", strings.Replace(fooJava, "int a;", "int a = 1;", 1))

	if code, _, stderr := p.exec(t, nil, "generate-fixes", "--implementation", "plain"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	body := p.read(t, "buildData/fixes/net/minecraft/server/Foo.java.patch")
	if !strings.Contains(body, "+    int a = 1;") {
		t.Fatalf("fix body:\n%s", body)
	}
	if code, _, _ := p.exec(t, nil, "generate-fixes", "--context=-1"); code != 1 {
		t.Fatalf("negative context: exit %d", code)
	}
}

func TestRestoreBlacklisted(t *testing.T) {
	p := newProject(t)
	p.write(t, "work/1.12.2/decompiled/net/minecraft/server/Foo.java", fooJava)
	p.write(t, "work/1.12.2/decompiled/net/minecraft/server/Blocked.java", "class Blocked {}\n")
	p.write(t, "work/unfixed/net/minecraft/server/Foo.java", fooJava)
	p.write(t, "work/unmapped/net/minecraft/server/Foo.java", fooJava)

	if code, _, stderr := p.exec(t, nil, "restore-blacklisted", "-q"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, dir := range []string{"work/unfixed", "work/unmapped"} {
		if got := p.read(t, dir+"/net/minecraft/server/Blocked.java"); got != "class Blocked {}\n" {
			t.Fatalf("%s: %q", dir, got)
		}
	}
}

func TestRemapSourceWithoutDecompiledSources(t *testing.T) {
	p := newProject(t)
	code, _, stderr := p.exec(t, nil, "remap-source")
	if code != 1 || !strings.Contains(stderr, "decompiled sources") {
		t.Fatalf("exit %d: %s", code, stderr)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), 1},
		{&fault.UnresolvedConflictError{Path: "Foo.java"}, 1},
		{&exitError{code: 2, err: fault.ErrUnresolved}, 2},
		{fmt.Errorf("wiggle: %w", &exitError{code: 2, err: fault.ErrUnresolved}), 2},
	}
	for _, c := range cases {
		if got := exitCode(c.err); got != c.want {
			t.Errorf("exitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
