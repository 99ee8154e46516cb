package files

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFiles are read from every listed directory, in order.
var IgnoreFiles = []string{".gitignore", ".ignore"}

type ignoreRule struct {
	pattern  string
	base     string // directory holding the rule's ignore file, "" for root
	dirOnly  bool
	negated  bool
	anchored bool
}

func (r ignoreRule) match(path string) bool {
	if r.base != "" {
		rest, ok := strings.CutPrefix(path, r.base+"/")
		if !ok {
			return false
		}
		path = rest
	}
	if r.anchored {
		matched, _ := doublestar.Match(r.pattern, path)
		return matched
	}
	matched, _ := doublestar.Match("**/"+r.pattern, path)
	if !matched {
		matched, _ = doublestar.Match(r.pattern, path)
	}
	return matched
}

// IgnoreMatcher evaluates gitignore-style rules against slash-separated
// paths relative to the listing root. Later rules win, so rules from a
// subdirectory's ignore file, loaded after its parents', take precedence.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher returns a matcher with no rules.
func NewIgnoreMatcher() *IgnoreMatcher {
	return &IgnoreMatcher{}
}

// LoadFile adds the rules in path, relative to the root. A missing file
// adds nothing.
func (m *IgnoreMatcher) LoadFile(path string) error {
	return m.LoadFileAt(path, "")
}

// LoadFileAt adds the rules of an ignore file found in the directory base,
// given relative to the root. Its patterns are relative to base and only
// match paths below it.
func (m *IgnoreMatcher) LoadFileAt(path, base string) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.ParseAt(content, base)
}

// Parse adds one rule per non-blank, non-comment line of content.
func (m *IgnoreMatcher) Parse(content []byte) error {
	return m.ParseAt(content, "")
}

// ParseAt is Parse for rules scoped to the directory base.
func (m *IgnoreMatcher) ParseAt(content []byte, base string) error {
	base = strings.Trim(filepath.ToSlash(base), "/")
	if base == "." {
		base = ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.addPattern(line, base)
	}
	return scanner.Err()
}

// AddPattern adds a single rule. A leading "!" negates it, a trailing "/"
// restricts it to directories and a leading "/" anchors it to the root.
func (m *IgnoreMatcher) AddPattern(pattern string) {
	m.addPattern(pattern, "")
}

func (m *IgnoreMatcher) addPattern(pattern, base string) {
	rule := ignoreRule{pattern: pattern, base: base}

	if strings.HasPrefix(rule.pattern, "!") {
		rule.negated = true
		rule.pattern = strings.TrimPrefix(rule.pattern, "!")
	}
	if strings.HasSuffix(rule.pattern, "/") {
		rule.dirOnly = true
		rule.pattern = strings.TrimSuffix(rule.pattern, "/")
	}
	if strings.HasPrefix(rule.pattern, "/") {
		rule.anchored = true
		rule.pattern = strings.TrimPrefix(rule.pattern, "/")
	} else if strings.Contains(rule.pattern, "/") {
		// gitignore anchors any pattern with an inner slash
		rule.anchored = true
	}
	if rule.pattern == "" {
		return
	}

	m.rules = append(m.rules, rule)
}

// Len returns the number of rules.
func (m *IgnoreMatcher) Len() int {
	return len(m.rules)
}

// Match reports whether relPath is ignored.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	excluded, _ := m.decide(relPath, isDir)
	return excluded
}

// decide returns the verdict of the last rule matching relPath and whether
// any rule matched at all.
func (m *IgnoreMatcher) decide(relPath string, isDir bool) (excluded, matched bool) {
	path := filepath.ToSlash(relPath)

	for _, rule := range m.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if rule.match(path) {
			excluded, matched = !rule.negated, true
		}
	}
	return excluded, matched
}
