// Package discovery enumerates files under a root matching extension,
// glob, depth, and symlink filters.
//
// Glob patterns are translated to anchored regexes ("**" and "**/" match
// across path separators, "*" and "?" do not). Exclude patterns are
// checked before include patterns. The depth bound still emits files at
// the boundary without descending further, and per-entry walk errors are
// logged to stderr rather than aborting the walk.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Options configures a Discover call.
type Options struct {
	// Extensions is the set of allowed file extensions, without the dot,
	// case-folded. Must be non-empty for any file to match.
	Extensions []string
	// IncludeGlobs, if non-empty, requires a path to match at least one.
	IncludeGlobs []string
	// ExcludeGlobs rejects a path that matches any of them.
	ExcludeGlobs []string
	// MaxDepth bounds traversal; nil means unlimited. Root-level files are
	// depth 0.
	MaxDepth *int
	// FollowSymlinks, if false (the default), skips symlinked entries.
	FollowSymlinks bool
}

// Discover enumerates files under root matching opts. If root is itself a
// file, the filters are applied to it directly. A missing root is a fatal
// error; per-entry errors encountered while walking are logged to stderr
// and do not abort the walk.
func Discover(root string, opts Options) ([]string, error) {
	include, err := compileGlobs(opts.IncludeGlobs)
	if err != nil {
		return nil, &xerrors.Config{Details: err.Error()}
	}
	exclude, err := compileGlobs(opts.ExcludeGlobs)
	if err != nil {
		return nil, &xerrors.Config{Details: err.Error()}
	}

	info, err := os.Lstat(root)
	if err != nil {
		return nil, &xerrors.Io{Path: root, Err: err}
	}

	matcher := filter{extensions: foldExtensions(opts.Extensions), include: include, exclude: exclude}

	if !info.IsDir() {
		if matcher.matches(root) {
			return []string{root}, nil
		}
		return []string{}, nil
	}

	var files []string
	walkDir(root, 0, opts, matcher, &files)
	return files, nil
}

func walkDir(dir string, depth int, opts Options, matcher filter, files *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: error reading directory %s: %v\n", dir, err)
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if isSymlink(entry) && !opts.FollowSymlinks {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: error processing %s: %v\n", path, err)
			continue
		}

		if info.IsDir() {
			if opts.MaxDepth != nil && depth >= *opts.MaxDepth {
				continue
			}
			walkDir(path, depth+1, opts, matcher, files)
			continue
		}

		if matcher.matches(path) {
			*files = append(*files, path)
		}
	}
}

func isSymlink(entry os.DirEntry) bool {
	return entry.Type()&os.ModeSymlink != 0
}

type filter struct {
	extensions map[string]bool
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
}

func (f filter) matches(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" || !f.extensions[ext] {
		return false
	}

	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func foldExtensions(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return m
}

func compileGlobs(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := globToRegex(p)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// globToRegex translates a glob pattern into an anchored regular
// expression. "**/" matches zero or more path segments, "**" matches
// anything including "/", "*" matches anything except "/", "?" matches a
// single non-"/" character, and "[...]" character classes pass through
// verbatim.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch ch {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			b.WriteByte('[')
			i++
			for i < len(runes) && runes[i] != ']' {
				if runes[i] == '\\' && i+1 < len(runes) {
					b.WriteRune('\\')
					i++
				}
				b.WriteRune(runes[i])
				i++
			}
			b.WriteByte(']')
		case '\\':
			b.WriteByte('\\')
			if i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			}
		case '.', '^', '$', '(', ')', '{', '}', '+', '|':
			b.WriteByte('\\')
			b.WriteRune(ch)
		default:
			b.WriteRune(ch)
		}
	}
	b.WriteByte('$')

	return regexp.Compile(b.String())
}
