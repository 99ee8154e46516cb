package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// SniffLen is how many leading bytes are inspected to detect binary files.
const SniffLen = 8000

// Lister finds candidate text files under a root directory.
type Lister struct {
	// Excludes are extra gitignore-style patterns, relative to the root.
	// They take precedence over every ignore file.
	Excludes []string
	// IncludeHidden lists dot files and dot directories. ".git" is
	// always skipped.
	IncludeHidden bool
	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	Logger *slog.Logger
}

func (l *Lister) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default().With("component", "files")
}

// List walks root in lexical order and returns the paths of text files that
// are not ignored. Returned paths are root joined with the relative path. A
// root that is itself a file is returned alone if it is text.
func (l *Lister) List(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		text, err := IsText(root)
		if err != nil {
			return nil, err
		}
		if !text {
			return nil, fmt.Errorf("%s is not a text file", root)
		}
		return []string{root}, nil
	}

	ignores := NewIgnoreMatcher()
	excludes := NewIgnoreMatcher()
	for _, pattern := range l.Excludes {
		excludes.AddPattern(pattern)
	}
	ignored := func(rel string, isDir bool) bool {
		if excluded, ok := excludes.decide(rel, isDir); ok {
			return excluded
		}
		return ignores.Match(rel, isDir)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			l.logger().Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			l.loadIgnoreFiles(ignores, path, "")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := d.Name()

		if d.IsDir() {
			if name == ".git" || (!l.IncludeHidden && isHidden(name)) || ignored(rel, true) {
				return filepath.SkipDir
			}
			l.loadIgnoreFiles(ignores, path, rel)
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !l.IncludeHidden && isHidden(name) {
			return nil
		}
		if ignored(rel, false) {
			return nil
		}
		if l.MaxFileSize > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > l.MaxFileSize {
				l.logger().Debug("skipping large file", "path", path, "size", fi.Size())
				return nil
			}
		}

		text, err := IsText(path)
		if err != nil {
			l.logger().Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if !text {
			l.logger().Debug("skipping binary file", "path", path)
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// loadIgnoreFiles adds the ignore files of dir, whose path relative to the
// root is rel. WalkDir enters parents first, so these rules follow theirs.
func (l *Lister) loadIgnoreFiles(m *IgnoreMatcher, dir, rel string) {
	for _, name := range IgnoreFiles {
		path := filepath.Join(dir, name)
		if err := m.LoadFileAt(path, rel); err != nil {
			l.logger().Warn("failed to read ignore file", "file", path, "error", err)
		}
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// IsText reports whether the file at path looks like UTF-8 text.
func IsText(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()

	buf := make([]byte, SniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return LooksLikeText(buf[:n], n == SniffLen), nil
}

// LooksLikeText reports whether data is NUL-free valid UTF-8. When truncated
// is set, a rune cut off at the end of data is tolerated.
func LooksLikeText(data []byte, truncated bool) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	if truncated {
		data = trimPartialRune(data)
	}
	return utf8.Valid(data)
}

func trimPartialRune(data []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if b < utf8.RuneSelf {
			return data
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[len(data)-i:]) {
				return data[:len(data)-i]
			}
			return data
		}
	}
	return data
}
