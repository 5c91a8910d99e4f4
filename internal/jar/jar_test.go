package jar

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeJar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"/a/b.class":           "a/b.class",
		"C:\\x\\y.class":       "x/y.class",
		"../../etc/passwd":     "etc/passwd",
		"net/./minecraft/../a": "net/a",
		"..":                   "",
	}
	for in, want := range cases {
		if got := SanitizePath(in); got != want {
			t.Errorf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractFiltersAndStaysInside(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "server-mapped.jar")
	writeJar(t, jarPath, map[string]string{
		"net/minecraft/server/Block.class":        "b",
		"net/minecraft/server/world/Chunk.class":  "c",
		"com/google/gson/Gson.class":              "g",
		"../../net/minecraft/server/Escape.class": "e",
		"META-INF/MANIFEST.MF":                    "m",
	})
	out := filepath.Join(dir, "bin")
	n, err := Extract(jarPath, out, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n != 3 {
		t.Fatalf("extracted %d files, want 3", n)
	}
	for _, rel := range []string{"net/minecraft/server/Block.class", "net/minecraft/server/world/Chunk.class", "net/minecraft/server/Escape.class"} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "com")); !os.IsNotExist(err) {
		t.Errorf("non-matching entries were extracted")
	}
	if _, err := os.Stat(filepath.Join(dir, "net")); !os.IsNotExist(err) {
		t.Errorf("entry escaped the output directory")
	}
}

func TestExtractBackslashEntries(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "windows.jar")
	writeJar(t, jarPath, map[string]string{
		"net\\minecraft\\server\\Block.class":    "b",
		"C:\\net\\minecraft\\server\\Item.class": "i",
	})
	out := filepath.Join(dir, "bin")
	n, err := Extract(jarPath, out, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n != 2 {
		t.Fatalf("extracted %d files, want 2", n)
	}
	for _, rel := range []string{"net/minecraft/server/Block.class", "net/minecraft/server/Item.class"} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestExtractRejectsBadPattern(t *testing.T) {
	if _, err := Extract("unused.jar", t.TempDir(), []string{"net/[a"}); err == nil {
		t.Fatal("expected bad pattern error")
	}
}

func TestPackageVersion(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "fork.jar")
	writeJar(t, jarPath, map[string]string{
		"net/minecraft/server/v1_12_R1/MinecraftServer.class": "x",
		"org/bukkit/Bukkit.class":                             "y",
	})
	v, err := PackageVersion(jarPath)
	if err != nil {
		t.Fatalf("PackageVersion: %v", err)
	}
	if v != "v1_12_R1" {
		t.Fatalf("version = %q", v)
	}

	plain := filepath.Join(dir, "plain.jar")
	writeJar(t, plain, map[string]string{"a/B.class": "x"})
	if _, err := PackageVersion(plain); err == nil {
		t.Fatal("expected detection failure")
	}
}
