// Package batch runs extractions over a whole source tree.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are never descended into, whatever the patterns say.
var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
}

// Discover walks root and returns the absolute paths of the files matching
// include and not matching exclude, sorted. Patterns are doublestar globs
// relative to root. When gitignore is set, paths ignored by a .gitignore in
// root or any directory below it are skipped too.
func Discover(root string, include, exclude []string, gitignore bool) ([]string, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absRoot)
	}

	var ignores *ignoreSet
	if gitignore {
		ignores = &ignoreSet{root: absRoot, files: map[string]*ignore.GitIgnore{}}
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == absRoot {
				ignores.load(path)
				return nil
			}
			if SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			if matchAny(exclude, relPath) || ignores.matches(path, true) {
				return filepath.SkipDir
			}
			ignores.load(path)
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !Matches(include, exclude, relPath) || ignores.matches(path, false) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether relPath, a slash-separated path relative to the
// scan root, is selected by include and not rejected by exclude.
func Matches(include, exclude []string, relPath string) bool {
	if matchAny(exclude, relPath) {
		return false
	}
	return len(include) == 0 || matchAny(include, relPath)
}

// SkipDir reports whether a directory with the given base name is never
// scanned.
func SkipDir(name string) bool {
	_, ok := skipDirs[name]
	return ok
}

func matchAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if m, _ := doublestar.Match(pattern, relPath); m {
			return true
		}
	}
	return false
}

// ignoreSet holds the compiled .gitignore of every visited directory. A nil
// set matches nothing.
type ignoreSet struct {
	root  string
	files map[string]*ignore.GitIgnore
}

func (s *ignoreSet) load(dir string) {
	if s == nil {
		return
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return
	}
	s.files[dir] = gi
}

// matches checks path against the .gitignore of each directory from root
// down to the path's parent.
func (s *ignoreSet) matches(path string, isDir bool) bool {
	if s == nil {
		return false
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if gi, ok := s.files[dir]; ok {
			rel, err := filepath.Rel(dir, path)
			if err == nil {
				rel = filepath.ToSlash(rel)
				if isDir {
					rel += "/"
				}
				if gi.MatchesPath(rel) {
					return true
				}
			}
		}
		if dir == s.root || !strings.HasPrefix(dir, s.root) {
			return false
		}
	}
}
