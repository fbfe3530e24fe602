package fingerprint

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/spf13/afero"
)

// Porcelain status records look like `XY file`; rename records are followed
// by an extra NUL-terminated original name that carries no status prefix.
var statusRecordRe = regexp.MustCompile(`^[MTADRCU?! ][MTADRCU?! ] `)

// Name-status diff records interleave status tokens (optionally carrying a
// three digit similarity score) with the file names they apply to.
var (
	diffScoreStatusRe = regexp.MustCompile(`^[CMR]\d{3}$`)
	diffStatusRe      = regexp.MustCompile(`^[ADMTUX]$`)
)

// Runner executes an external command in dir, feeding stdin to the process
// when non-empty, and returns the captured standard output. Tests inject a
// fake Runner to observe and stub subprocess calls.
type Runner func(ctx context.Context, dir, stdin, name string, args ...string) (string, error)

// Git implements Vcs against the git client binary.
//
// Compiled ignore rules are read-only after construction; the response cache
// is the only state mutated afterwards, through its own lock discipline.
// Safe for concurrent use from many task sequences.
type Git struct {
	cache         *commandCache
	defaultBranch string
	ignore        gitignore.Matcher // nil when no ignore file exists
	workingDir    string
	fs            afero.Fs
	run           Runner
}

// GitOption configures a Git instance.
type GitOption func(*Git)

// WithFs sets the filesystem used to load the ignore file and to discover
// the repository. This is primarily useful for testing with in-memory
// filesystems.
func WithFs(fs afero.Fs) GitOption {
	return func(g *Git) {
		g.fs = fs
	}
}

// WithRunner sets the subprocess runner. The default shells out to the git
// binary; tests substitute a fake.
func WithRunner(run Runner) GitOption {
	return func(g *Git) {
		g.run = run
	}
}

// NewGit creates a git backend rooted at workingDir. If a .gitignore exists
// at the root, its rules are compiled once here and consulted by every
// hashing query; a missing file is not an error, an unreadable one is.
func NewGit(defaultBranch, workingDir string, options ...GitOption) (*Git, error) {
	g := &Git{
		cache:         newCommandCache(),
		defaultBranch: defaultBranch,
		workingDir:    workingDir,
		fs:            afero.NewOsFs(),
		run:           execRunner,
	}

	for _, option := range options {
		option(g)
	}

	ignorePath := filepath.Join(workingDir, ".gitignore")

	exists, err := afero.Exists(g.fs, ignorePath)
	if err != nil {
		return nil, &IgnoreFileError{Path: ignorePath, Cause: err}
	}

	if exists {
		data, err := afero.ReadFile(g.fs, ignorePath)
		if err != nil {
			return nil, &IgnoreFileError{Path: ignorePath, Cause: err}
		}

		var patterns []gitignore.Pattern

		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}

			if pattern := gitignore.ParsePattern(line, nil); pattern != nil {
				patterns = append(patterns, pattern)
			}
		}

		g.ignore = gitignore.NewMatcher(patterns)
	}

	return g, nil
}

// execRunner is the production Runner: buffered stdout/stderr capture, with
// failures wrapped in a CommandError carrying the command line and stderr.
func execRunner(ctx context.Context, dir, stdin, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{
			Cmd:    name,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Cause:  err,
		}
	}

	return stdout.String(), nil
}

// runCached executes a git command through the response cache, keyed by the
// exact command line.
func (g *Git) runCached(ctx context.Context, trim bool, args ...string) (string, error) {
	key := "git " + strings.Join(args, " ")

	return g.cache.GetOrCompute(key, func() (string, error) {
		output, err := g.run(ctx, g.workingDir, "", "git", args...)
		if err != nil {
			return "", err
		}

		if trim {
			output = strings.TrimSpace(output)
		}

		return output, nil
	})
}

// mergeBase resolves the diff baseline for base against head, preferring the
// literal name, then its origin and upstream namespaced forms. When no
// candidate resolves, the literal base is returned unresolved and callers
// must tolerate the inexact baseline.
func (g *Git) mergeBase(ctx context.Context, base, head string) string {
	candidates := []string{base, "origin/" + base, "upstream/" + base}

	for _, candidate := range candidates {
		if revision, err := g.runCached(ctx, true, "merge-base", candidate, head); err == nil {
			return revision
		}
	}

	return base
}

func (g *Git) isFileIgnored(file string) bool {
	if g.ignore == nil {
		return false
	}

	return g.ignore.Match(splitIgnorePath(file), false)
}

// splitIgnorePath splits a path into the segments the gitignore matcher
// expects, normalizing separators and dropping empty and "." parts.
func splitIgnorePath(path string) []string {
	var segments []string

	for _, part := range strings.Split(standardizeSeparators(path), "/") {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}

	return segments
}

// LocalBranch implements Vcs.
func (g *Git) LocalBranch(ctx context.Context) (string, error) {
	return g.runCached(ctx, true, "branch", "--show-current")
}

// LocalBranchRevision implements Vcs.
func (g *Git) LocalBranchRevision(ctx context.Context) (string, error) {
	return g.runCached(ctx, true, "rev-parse", "HEAD")
}

// DefaultBranch implements Vcs.
func (g *Git) DefaultBranch() string {
	return g.defaultBranch
}

// DefaultBranchRevision implements Vcs.
func (g *Git) DefaultBranchRevision(ctx context.Context) (string, error) {
	return g.runCached(ctx, true, "rev-parse", g.defaultBranch)
}

// FileHashes implements Vcs. Ignored files are filtered out, then a single
// batched `git hash-object` call hashes the remainder, fed one path per line
// on stdin. git emits one hash per input line in the same order, so output
// is zipped positionally with the filtered list.
//
// This call bypasses the response cache: its input arrives on stdin, so the
// command line alone cannot key the cache.
func (g *Git) FileHashes(ctx context.Context, files []string) (map[string]string, error) {
	objects := make([]string, 0, len(files))

	for _, file := range files {
		if !g.isFileIgnored(file) {
			objects = append(objects, file)
		}
	}

	hashes := make(map[string]string, len(objects))

	if len(objects) == 0 {
		return hashes, nil
	}

	output, err := g.run(ctx, g.workingDir, strings.Join(objects, "\n"), "git", "hash-object", "--stdin-paths")
	if err != nil {
		return nil, err
	}

	for index, line := range strings.Split(strings.TrimSpace(output), "\n") {
		objectHash := strings.TrimSpace(line)

		if objectHash != "" && index < len(objects) {
			hashes[objects[index]] = objectHash
		}
	}

	return hashes, nil
}

// FileTreeHashes implements Vcs. Lists tree entries recursively under dir at
// the head revision. An empty repository produces no output and yields an
// empty map rather than an error.
func (g *Git) FileTreeHashes(ctx context.Context, dir string) (map[string]string, error) {
	output, err := g.runCached(ctx, true, "ls-tree", "HEAD", "-r", dir)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string)

	if output == "" {
		return hashes, nil
	}

	for _, line := range strings.Split(output, "\n") {
		// <mode> <type> <hash>\t<file>
		parts := strings.Split(line, " ")
		// <hash>\t<file>
		objectHash, file, found := strings.Cut(parts[len(parts)-1], "\t")

		if found && objectHash != "" && file != "" && !g.isFileIgnored(file) {
			hashes[file] = objectHash
		}
	}

	return hashes, nil
}

// TouchedFiles implements Vcs.
//
// The status query runs with NUL-delimited, unescaped file names so special
// characters come through as-is. Records are `XY file`, where X is the
// staged status and Y the unstaged one; a rename appends an original-name
// record with no status prefix, which the record pattern skips.
func (g *Git) TouchedFiles(ctx context.Context) (*TouchedFiles, error) {
	output, err := g.runCached(ctx, false,
		"status", "--porcelain", "--untracked-files", "-z")
	if err != nil {
		return nil, err
	}

	touched := NewTouchedFiles()

	if output == "" {
		return touched, nil
	}

	for _, record := range strings.Split(output, "\x00") {
		if record == "" {
			continue
		}

		// Skips orig_file records and anything else malformed.
		if !statusRecordRe.MatchString(record) {
			continue
		}

		x := record[0]
		y := record[1]
		file := record[3:]

		switch x {
		case 'A', 'C':
			touched.Added.Add(file)
			touched.Staged.Add(file)
		case 'D':
			touched.Deleted.Add(file)
			touched.Staged.Add(file)
		case 'M', 'R':
			touched.Modified.Add(file)
			touched.Staged.Add(file)
		}

		switch y {
		case 'A', 'C':
			touched.Added.Add(file)
			touched.Unstaged.Add(file)
		case 'D':
			touched.Deleted.Add(file)
			touched.Unstaged.Add(file)
		case 'M', 'R':
			touched.Modified.Add(file)
			touched.Unstaged.Add(file)
		case '?':
			touched.Untracked.Add(file)
		}

		touched.All.Add(file)
	}

	return touched, nil
}

// TouchedFilesAgainstPreviousRevision implements Vcs. Diffs revision~1
// against revision, except when revision names the default branch, in which
// case HEAD is diffed instead.
func (g *Git) TouchedFilesAgainstPreviousRevision(ctx context.Context, revision string) (*TouchedFiles, error) {
	rev := revision

	if g.IsDefaultBranch(revision) {
		rev = "HEAD"
	}

	return g.TouchedFilesBetweenRevisions(ctx, rev+"~1", rev)
}

// TouchedFilesBetweenRevisions implements Vcs.
//
// In NUL-delimited name-status output, a status token applies to the file
// record(s) that follow it until the next token; copy/rename/modify tokens
// carry a similarity score. A rename's second file record classifies under
// the same status. Unstaged and Untracked stay empty: a revision diff has no
// notion of working tree changes.
func (g *Git) TouchedFilesBetweenRevisions(ctx context.Context, baseRevision, revision string) (*TouchedFiles, error) {
	base := g.mergeBase(ctx, baseRevision, revision)

	output, err := g.runCached(ctx, false,
		"--no-pager", "diff", "--name-status", "--no-color", "--relative", "-z", base, revision)
	if err != nil {
		return nil, err
	}

	touched := NewTouchedFiles()

	if output == "" {
		return touched, nil
	}

	lastStatus := byte('A')

	for _, record := range strings.Split(output, "\x00") {
		if record == "" {
			continue
		}

		if diffScoreStatusRe.MatchString(record) || diffStatusRe.MatchString(record) {
			lastStatus = record[0]
			continue
		}

		file := record

		switch lastStatus {
		case 'A', 'C':
			touched.Added.Add(file)
			touched.Staged.Add(file)
		case 'D':
			touched.Deleted.Add(file)
			touched.Staged.Add(file)
		case 'M', 'R':
			touched.Modified.Add(file)
			touched.Staged.Add(file)
		}

		touched.All.Add(file)
	}

	return touched, nil
}

// IsDefaultBranch implements Vcs. A namespaced default branch such as
// `origin/main` also matches its bare suffix `main`.
func (g *Git) IsDefaultBranch(branch string) bool {
	if g.defaultBranch == branch {
		return true
	}

	if strings.Contains(g.defaultBranch, "/") {
		return strings.HasSuffix(g.defaultBranch, "/"+branch)
	}

	return false
}

// IsEnabled implements Vcs. Walks upward from the working directory looking
// for a .git metadata directory.
func (g *Git) IsEnabled() bool {
	dir := g.workingDir

	for {
		if exists, _ := afero.Exists(g.fs, filepath.Join(dir, ".git")); exists {
			return true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}

		dir = parent
	}
}
