package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/monochromegane/go-gitignore"
)

var ErrRootUnreadable = errors.New("root directory is not readable")

// matchOptions controls which matched files are kept.
type matchOptions struct {
	Hidden   bool // keep files under hidden path segments
	NoIgnore bool // do not honour the root .gitignore
}

// matcher resolves group patterns below one root directory.
type matcher struct {
	root    string
	absRoot string
	opts    matchOptions
	ignore  gitignore.IgnoreMatcher
}

func newMatcher(root string, opts matchOptions) (*matcher, error) {
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	m := &matcher{root: root, absRoot: absRoot, opts: opts}

	if !opts.NoIgnore {
		gitIgnorePath := filepath.Join(absRoot, ".gitignore")
		if _, err := os.Stat(gitIgnorePath); err == nil {
			ign, err := gitignore.NewGitIgnore(gitIgnorePath, absRoot)
			if err != nil {
				return nil, fmt.Errorf("could not parse %s: %w", gitIgnorePath, err)
			}
			m.ignore = ign
		}
	}
	return m, nil
}

// resolveGroups matches every group's patterns below root. Groups without
// matches are kept with no files.
func resolveGroups(root string, specs []GroupSpec, opts matchOptions) ([]Group, error) {
	m, err := newMatcher(root, opts)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(specs))
	for _, spec := range specs {
		files, err := m.matchAll(spec.Patterns)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", spec.Name, err)
		}
		groups = append(groups, Group{
			Name:     spec.Name,
			Patterns: append([]string(nil), spec.Patterns...),
			Files:    files,
		})
	}
	return groups, nil
}

// matchAll returns the files matched by any pattern, deduplicated by
// canonical path and sorted.
func (m *matcher) matchAll(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := m.match(pattern)
		if err != nil {
			return nil, err
		}
		for _, file := range matches {
			key := canonicalPath(file)
			if seen[key] {
				continue
			}
			seen[key] = true
			files = append(files, file)
		}
	}
	sort.Strings(files)
	return files, nil
}

// match resolves one pattern. Relative patterns are joined to the root;
// the fixed leading directories become the base of the walk.
func (m *matcher) match(pattern string) ([]string, error) {
	full := pattern
	if !filepath.IsAbs(pattern) {
		full = filepath.Join(m.root, pattern)
	}
	base, pat := doublestar.SplitPattern(filepath.ToSlash(full))
	if !doublestar.ValidatePattern(pat) {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(base)), pat, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	var files []string
	for _, rel := range matches {
		if !m.opts.Hidden && hasHiddenSegment(rel) {
			continue
		}
		file := filepath.FromSlash(path.Join(base, rel))
		if m.ignored(file) {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// ignored reports whether file, or one of its directories below the root,
// is excluded by the root .gitignore.
func (m *matcher) ignored(file string) bool {
	if m.ignore == nil {
		return false
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return false
	}
	if rel, err := filepath.Rel(m.absRoot, abs); err != nil || strings.HasPrefix(rel, "..") {
		return false // outside the root, the root's .gitignore does not apply
	}
	if m.ignore.Match(abs, false) {
		return true
	}
	for dir := filepath.Dir(abs); dir != m.absRoot && len(dir) > len(m.absRoot); dir = filepath.Dir(dir) {
		if m.ignore.Match(dir, true) {
			return true
		}
	}
	return false
}

// hasHiddenSegment reports whether any segment of a slash path starts with '.'.
func hasHiddenSegment(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if isHidden(seg) {
			return true
		}
	}
	return false
}

// isHidden checks if a path segment is hidden (starts with '.').
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return len(name) > 0 && name[0] == '.'
}

// canonicalPath identifies a file independently of how a pattern spelled it.
func canonicalPath(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		return filepath.Clean(file)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// splitByDirectory replaces every group by one group per parent directory of
// its files, named "<group>/<dir>". Groups without files are kept as they are.
func splitByDirectory(root string, groups []Group) []Group {
	var out []Group
	for _, g := range groups {
		if len(g.Files) == 0 {
			out = append(out, g)
			continue
		}
		byDir := make(map[string][]string)
		for _, file := range g.Files {
			dir := filepath.Dir(file)
			if rel, err := filepath.Rel(root, dir); err == nil && !strings.HasPrefix(rel, "..") {
				dir = rel
			}
			dir = filepath.ToSlash(dir)
			byDir[dir] = append(byDir[dir], file)
		}
		for _, dir := range sortedKeys(byDir) {
			name := g.Name
			if dir != "." {
				name = g.Name + "/" + dir
			}
			out = append(out, Group{Name: name, Patterns: g.Patterns, Files: byDir[dir]})
		}
	}
	return out
}
