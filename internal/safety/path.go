package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveUnder resolves p for reading. With an empty root any path is
// accepted and made absolute; otherwise p must stay inside root, either as
// a relative path or as an absolute path below it.
func ResolveUnder(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is empty")
	}
	if root == "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		return abs, nil
	}
	if filepath.IsAbs(p) {
		return EnsureUnderRoot(root, p)
	}
	return SafeJoinUnder(root, p)
}

// SafeJoinUnder joins a relative path under root and verifies the result
// remains inside root.
func SafeJoinUnder(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	switch {
	case clean == ".":
		return "", fmt.Errorf("path resolves to current directory")
	case filepath.IsAbs(clean):
		return "", fmt.Errorf("absolute paths are not allowed: %q", rel)
	case escapes(clean):
		return "", fmt.Errorf("parent traversal is not allowed: %q", rel)
	}
	return EnsureUnderRoot(root, filepath.Join(root, clean))
}

// EnsureUnderRoot verifies candidate resolves under root and returns
// an absolute normalized path.
func EnsureUnderRoot(root, candidate string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve candidate: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, candAbs)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("path escapes root: %q", candidate)
	}
	return candAbs, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFileWithLimit reads a regular file, failing with ErrBodyTooLarge when
// it is bigger than limit bytes.
func ReadFileWithLimit(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if fi.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBodyTooLarge, path, fi.Size())
	}
	return ReadAllWithLimit(f, limit)
}
