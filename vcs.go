package fingerprint

import (
	"context"
	"sort"
)

// FileSet is a set of file paths.
type FileSet map[string]struct{}

// Add inserts a path into the set.
func (s FileSet) Add(path string) {
	s[path] = struct{}{}
}

// Has returns true if the path is in the set.
func (s FileSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Sorted returns the paths in ascending order.
func (s FileSet) Sorted() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// TouchedFiles is a snapshot of files changed relative to a baseline,
// partitioned by change kind. A file may appear in both Staged and Unstaged
// when it has independent index and working tree changes; every classified
// file also appears in All. Immutable once produced.
type TouchedFiles struct {
	Added     FileSet
	All       FileSet
	Deleted   FileSet
	Modified  FileSet
	Staged    FileSet
	Unstaged  FileSet
	Untracked FileSet
}

// NewTouchedFiles returns an empty snapshot with all sets allocated.
func NewTouchedFiles() *TouchedFiles {
	return &TouchedFiles{
		Added:     make(FileSet),
		All:       make(FileSet),
		Deleted:   make(FileSet),
		Modified:  make(FileSet),
		Staged:    make(FileSet),
		Unstaged:  make(FileSet),
		Untracked: make(FileSet),
	}
}

// Vcs abstracts the version control queries the cache engine depends on.
// One production implementation exists, backed by the git binary; alternate
// backends, including a no-op one for non-VCS workspaces, can be substituted
// without touching callers.
type Vcs interface {
	// LocalBranch returns the currently checked out branch name.
	LocalBranch(ctx context.Context) (string, error)

	// LocalBranchRevision returns the revision at the head of the local
	// branch.
	LocalBranchRevision(ctx context.Context) (string, error)

	// DefaultBranch returns the configured default branch name.
	DefaultBranch() string

	// DefaultBranchRevision returns the revision at the head of the default
	// branch.
	DefaultBranchRevision(ctx context.Context) (string, error)

	// FileHashes returns a content hash per file, skipping files matched by
	// the ignore rules.
	FileHashes(ctx context.Context, files []string) (map[string]string, error)

	// FileTreeHashes returns the tree object hash of every entry under dir
	// at the current head revision, skipping ignored paths.
	FileTreeHashes(ctx context.Context, dir string) (map[string]string, error)

	// TouchedFiles returns the files changed in the working tree and index.
	TouchedFiles(ctx context.Context) (*TouchedFiles, error)

	// TouchedFilesAgainstPreviousRevision returns the files changed by the
	// given revision relative to its parent.
	TouchedFilesAgainstPreviousRevision(ctx context.Context, revision string) (*TouchedFiles, error)

	// TouchedFilesBetweenRevisions returns the files changed between a base
	// revision and a head revision. Unstaged and Untracked are always empty
	// for this query.
	TouchedFilesBetweenRevisions(ctx context.Context, baseRevision, revision string) (*TouchedFiles, error)

	// IsDefaultBranch returns true if the given branch name refers to the
	// configured default branch, including its namespaced forms.
	IsDefaultBranch(branch string) bool

	// IsEnabled returns true if a VCS metadata directory is discoverable
	// from the working directory.
	IsEnabled() bool
}
