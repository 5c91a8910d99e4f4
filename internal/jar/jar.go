// Package jar reads class files out of the upstream server jar.
package jar

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fountain/internal/fault"
)

// DefaultInclude selects the server classes handed to the decompiler.
var DefaultInclude = []string{"net/minecraft/server/**"}

// SanitizePath normalizes a zip entry name (forward slashes, no drive, no
// leading '/') and drops '.' and '..' segments without escaping the root.
// Backslashes are separators whatever the host OS.
func SanitizePath(p string) string {
	s := strings.ReplaceAll(p, "\\", "/")
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	return strings.Join(stack, "/")
}

// Extract copies the entries of the jar at path that match any include
// pattern into dst and returns how many files it wrote.
func Extract(path, dst string, include []string) (int, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return 0, fault.Configf("extract classes", path, "bad include pattern %q", p)
		}
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := SanitizePath(f.Name)
		if name == "" || !matchAny(include, name) {
			continue
		}
		if err := extractOne(f, filepath.Join(dst, filepath.FromSlash(name))); err != nil {
			return n, fmt.Errorf("extract %s: %w", name, err)
		}
		n++
	}
	return n, nil
}

func extractOne(f *zip.File, out string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	w, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

var packageVersionRe = regexp.MustCompile(`^net/minecraft/server/(\w+)/MinecraftServer\.class$`)

// PackageVersion finds the version segment the fork's build shades server
// packages under (net/minecraft/server/<version>/...).
func PackageVersion(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if m := packageVersionRe.FindStringSubmatch(f.Name); m != nil {
			return m[1], nil
		}
	}
	return "", fault.Configf("detect package versioning", path, "unable to detect NMS package versioning")
}
