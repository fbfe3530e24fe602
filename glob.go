package fingerprint

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// windowsPrefixRe matches a drive letter or UNC prefix at the start of a
// Windows path.
var windowsPrefixRe = regexp.MustCompile(`(//\?/)?[A-Z]:`)

// IsGlob returns true if the value looks like a glob pattern: it contains a
// double asterisk, an unescaped `*`, `?`, or `!`, or an unescaped matching
// `{...}` or `[...]` pair.
//
// This is a heuristic and not exhaustive. Escaping is only checked at the
// first occurrence of a trigger character, never at later ones; downstream
// behavior depends on this exact leniency.
func IsGlob(value string) bool {
	if strings.Contains(value, "**") {
		return true
	}

	escaped := func(index int) bool {
		return index > 0 && value[index-1] == '\\'
	}

	for _, single := range []string{"*", "?", "!"} {
		if index := strings.Index(value, single); index >= 0 && !escaped(index) {
			return true
		}
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		if !strings.Contains(value, pair[0]) || !strings.Contains(value, pair[1]) {
			continue
		}

		if index := strings.Index(value, pair[0]); index >= 0 && !escaped(index) {
			return true
		}
	}

	return false
}

// NormalizeGlob converts a path to forward slash form for use inside a glob
// expression. On Windows, a drive letter or UNC prefix is replaced with a
// recursive wildcard, as such prefixes are not meaningful in a glob.
func NormalizeGlob(value string) string {
	glob := standardizeSeparators(value)

	if runtime.GOOS == "windows" {
		return windowsPrefixRe.ReplaceAllString(glob, "**")
	}

	return glob
}

// SplitPatterns partitions patterns into positive expressions and negations.
// A `!` prefix marks a negation and a `/` prefix an anchored expression;
// both prefixes are stripped.
func SplitPatterns(patterns []string) (expressions, negations []string) {
	for _, pattern := range patterns {
		switch {
		case strings.HasPrefix(pattern, "!"):
			negations = append(negations, strings.TrimPrefix(pattern, "!"))
		case strings.HasPrefix(pattern, "/"):
			expressions = append(expressions, strings.TrimPrefix(pattern, "/"))
		default:
			expressions = append(expressions, pattern)
		}
	}

	return expressions, negations
}

// GlobSet is a compiled alternation of patterns. Immutable after
// construction and safe for unsynchronized concurrent reads.
type GlobSet struct {
	globs []compiledGlob
}

// compiledGlob holds the brace-expanded variants of one pattern, each split
// into path segments.
type compiledGlob struct {
	pattern  string
	variants [][]string
}

// NewGlobSet compiles patterns into a matcher. All patterns are treated as
// positive expressions. Any invalid pattern fails the whole batch before
// anything is matched.
func NewGlobSet(patterns []string) (*GlobSet, error) {
	globs := make([]compiledGlob, 0, len(patterns))

	for _, pattern := range patterns {
		glob, err := compileGlob(pattern)
		if err != nil {
			return nil, err
		}

		globs = append(globs, glob)
	}

	return &GlobSet{globs: globs}, nil
}

// Matches returns true if the path matches any compiled pattern.
func (s *GlobSet) Matches(value string) bool {
	parts := splitIgnorePath(value)

	for _, glob := range s.globs {
		for _, variant := range glob.variants {
			if matchSegments(variant, parts, 0, 0) {
				return true
			}
		}
	}

	return false
}

func compileGlob(pattern string) (compiledGlob, error) {
	expanded, err := expandBraces(standardizeSeparators(pattern))
	if err != nil {
		return compiledGlob{}, &GlobError{Pattern: pattern, Cause: err}
	}

	variants := make([][]string, 0, len(expanded))

	for _, variant := range expanded {
		var segments []string

		for _, segment := range strings.Split(variant, "/") {
			if segment == "" || segment == "." {
				continue
			}

			if segment != "**" {
				if _, err := path.Match(segment, "probe"); err != nil {
					return compiledGlob{}, &GlobError{Pattern: pattern, Cause: err}
				}
			}

			segments = append(segments, segment)
		}

		variants = append(variants, segments)
	}

	return compiledGlob{pattern: pattern, variants: variants}, nil
}

// expandBraces rewrites `{a,b}` alternations into separate pattern variants.
// Nested groups expand recursively. An opening brace without a matching
// close is a compile error.
func expandBraces(value string) ([]string, error) {
	open := -1

	for i := 0; i < len(value); i++ {
		if value[i] == '\\' {
			i++
			continue
		}

		if value[i] == '{' {
			open = i
			break
		}
	}

	if open < 0 {
		return []string{value}, nil
	}

	depth := 0
	closeIndex := -1
	var splits []int

	for i := open; i < len(value); i++ {
		switch value[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				closeIndex = i
			}
		case ',':
			if depth == 1 {
				splits = append(splits, i)
			}
		}

		if closeIndex >= 0 {
			break
		}
	}

	if closeIndex < 0 {
		return nil, errors.New("unmatched '{'")
	}

	prefix := value[:open]
	suffix := value[closeIndex+1:]

	var alternatives []string
	start := open + 1

	for _, split := range splits {
		alternatives = append(alternatives, value[start:split])
		start = split + 1
	}
	alternatives = append(alternatives, value[start:closeIndex])

	var variants []string

	for _, alternative := range alternatives {
		expanded, err := expandBraces(prefix + alternative + suffix)
		if err != nil {
			return nil, err
		}

		variants = append(variants, expanded...)
	}

	return variants, nil
}

// matchSegments recursively matches path parts against pattern parts, with
// `**` matching zero or more directories.
func matchSegments(patternParts, pathParts []string, patternIndex, pathIndex int) bool {
	if patternIndex >= len(patternParts) {
		return pathIndex >= len(pathParts)
	}

	if pathIndex >= len(pathParts) {
		for i := patternIndex; i < len(patternParts); i++ {
			if patternParts[i] != "**" {
				return false
			}
		}
		return true
	}

	patternPart := patternParts[patternIndex]

	if patternPart == "**" {
		if matchSegments(patternParts, pathParts, patternIndex+1, pathIndex) {
			return true
		}
		return matchSegments(patternParts, pathParts, patternIndex, pathIndex+1)
	}

	matched, err := path.Match(patternPart, pathParts[pathIndex])
	if err != nil || !matched {
		return false
	}

	return matchSegments(patternParts, pathParts, patternIndex+1, pathIndex+1)
}

// Walk resolves patterns against the filesystem under baseDir, returning
// every regular file matched by a positive pattern and not matched by any
// negation, sorted for determinism. Symlink targets are not followed, and
// entries that error during the walk are skipped rather than aborting it.
func Walk(fsys afero.Fs, baseDir string, patterns []string) ([]string, error) {
	expressions, negations := SplitPatterns(patterns)

	includes, err := NewGlobSet(expressions)
	if err != nil {
		return nil, err
	}

	excludes, err := NewGlobSet(negations)
	if err != nil {
		return nil, err
	}

	var paths []string

	walkErr := afero.Walk(fsys, baseDir, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}

		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel := relativeToBase(walkPath, baseDir)

		if includes.Matches(rel) && !excludes.Matches(rel) {
			paths = append(paths, walkPath)
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(paths)

	return paths, nil
}

func relativeToBase(value, baseDir string) string {
	if baseDir == "" {
		return standardizeSeparators(value)
	}

	rel, err := filepath.Rel(baseDir, value)
	if err != nil {
		return standardizeSeparators(value)
	}

	return standardizeSeparators(rel)
}
