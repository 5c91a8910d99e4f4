package tree

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeLF converts CRLF and lone CR to LF.
func NormalizeLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
}

// SplitLines splits text into lines with their terminators removed. A single
// trailing newline does not produce an empty final line.
func SplitLines(b []byte) []string {
	b = NormalizeLF(b)
	if len(b) == 0 {
		return []string{}
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.Split(s, "\n")
}

// JoinLines renders lines with a '\n' after every line, including the last.
func JoinLines(lines []string) []byte {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	out := make([]byte, 0, n)
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}

// ReadLines reads a text file as normalized lines.
func ReadLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitLines(b), nil
}

// WriteLines writes lines to path, creating parent directories.
func WriteLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, JoinLines(lines), 0o644)
}
