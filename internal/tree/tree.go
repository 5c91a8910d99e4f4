package tree

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Remove deletes a file or a whole tree. Missing paths are not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(path)
}

// Copy snapshots the tree at src into dst. dst must not exist.
func Copy(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return &fs.PathError{Op: "copy", Path: dst, Err: fs.ErrExist}
	}
	files, err := Walk(src, WalkOptions{})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, f := range files {
		if err := CopyFile(f.AbsPath, filepath.Join(dst, filepath.FromSlash(f.RelPath))); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies one file, creating the parent directories of dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Fingerprint returns a blake3 digest over the sorted relative paths and
// normalized contents of every file below root. Trees that differ only in
// line endings share a fingerprint.
func Fingerprint(root string) (string, error) {
	files, err := Walk(root, WalkOptions{})
	if err != nil {
		return "", err
	}
	h := blake3.New(32, nil)
	for _, f := range files {
		b, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return "", err
		}
		h.Write([]byte(f.RelPath))
		h.Write([]byte{0})
		h.Write(NormalizeLF(b))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest hashes parts into one key. Each part is length-prefixed, so
// ("ab", "c") and ("a", "bc") differ.
func Digest(parts ...string) string {
	h := blake3.New(32, nil)
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
