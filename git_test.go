package fingerprint

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner stubs subprocess execution and counts invocations, keyed by the
// joined argument list.
type fakeRunner struct {
	mu        sync.Mutex
	calls     [][]string
	stdins    []string
	responses map[string]string
	failures  map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (f *fakeRunner) run(_ context.Context, _, stdin, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{name}, args...))
	f.stdins = append(f.stdins, stdin)

	key := strings.Join(args, " ")
	if err, ok := f.failures[key]; ok {
		return "", err
	}

	return f.responses[key], nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) calledWith(args ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := strings.Join(append([]string{"git"}, args...), " ")
	for _, call := range f.calls {
		if strings.Join(call, " ") == want {
			return true
		}
	}
	return false
}

func newTestGit(t *testing.T, defaultBranch string, runner *fakeRunner, ignoreLines ...string) *Git {
	t.Helper()

	memFs := afero.NewMemMapFs()
	if len(ignoreLines) > 0 {
		content := strings.Join(ignoreLines, "\n") + "\n"
		require.NoError(t, afero.WriteFile(memFs, "/repo/.gitignore", []byte(content), 0o644))
	}

	git, err := NewGit(defaultBranch, "/repo", WithFs(memFs), WithRunner(runner.run))
	require.NoError(t, err)

	return git
}

func TestTouchedFilesStatusParsing(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["status --porcelain --untracked-files -z"] = strings.Join([]string{
		"M  foo",
		"?? bar",
		" ? baz",
		" M ws.txt",
		"R  renamed.txt",
		"orig.txt",
		"A  new.txt",
		"garbage-record",
		"",
	}, "\x00")

	git := newTestGit(t, "master", runner)

	touched, err := git.TouchedFiles(context.Background())
	require.NoError(t, err)

	assert.True(t, touched.Modified.Has("foo"))
	assert.True(t, touched.Staged.Has("foo"))
	assert.False(t, touched.Unstaged.Has("foo"))
	assert.True(t, touched.All.Has("foo"))

	assert.True(t, touched.Untracked.Has("bar"))
	assert.False(t, touched.Staged.Has("bar"))
	assert.False(t, touched.Unstaged.Has("bar"))
	assert.True(t, touched.All.Has("bar"))

	assert.True(t, touched.Untracked.Has("baz"))
	assert.True(t, touched.All.Has("baz"))

	assert.True(t, touched.Modified.Has("ws.txt"))
	assert.True(t, touched.Unstaged.Has("ws.txt"))
	assert.False(t, touched.Staged.Has("ws.txt"))

	assert.True(t, touched.Modified.Has("renamed.txt"))
	assert.True(t, touched.Staged.Has("renamed.txt"))

	assert.True(t, touched.Added.Has("new.txt"))
	assert.True(t, touched.Staged.Has("new.txt"))

	// Rename origin records and malformed records are dropped.
	assert.False(t, touched.All.Has("orig.txt"))
	assert.False(t, touched.All.Has("garbage-record"))
}

func TestTouchedFilesEmptyOutput(t *testing.T) {
	runner := newFakeRunner()
	git := newTestGit(t, "master", runner)

	touched, err := git.TouchedFiles(context.Background())
	require.NoError(t, err)

	assert.Empty(t, touched.All)
	assert.Empty(t, touched.Staged)
	assert.Empty(t, touched.Untracked)
}

func TestTouchedFilesCacheReuse(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["status --porcelain --untracked-files -z"] = "M  foo\x00"

	git := newTestGit(t, "master", runner)

	first, err := git.TouchedFiles(context.Background())
	require.NoError(t, err)

	second, err := git.TouchedFiles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, runner.callCount(), "second query must be served from the cache")
}

func TestTouchedFilesBetweenRevisions(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["merge-base base head"] = errors.New("unknown revision")
	runner.responses["merge-base origin/base head"] = "abc123\n"
	runner.responses["--no-pager diff --name-status --no-color --relative -z abc123 head"] = strings.Join([]string{
		"A", "added.txt",
		"M", "mod.txt",
		"R097", "old.txt", "new.txt",
		"D", "gone.txt",
		"",
	}, "\x00")

	git := newTestGit(t, "master", runner)

	touched, err := git.TouchedFilesBetweenRevisions(context.Background(), "base", "head")
	require.NoError(t, err)

	assert.True(t, touched.Added.Has("added.txt"))
	assert.True(t, touched.Modified.Has("mod.txt"))
	assert.True(t, touched.Modified.Has("old.txt"))
	assert.True(t, touched.Modified.Has("new.txt"))
	assert.True(t, touched.Deleted.Has("gone.txt"))

	for _, file := range []string{"added.txt", "mod.txt", "old.txt", "new.txt", "gone.txt"} {
		assert.True(t, touched.Staged.Has(file))
		assert.True(t, touched.All.Has(file))
	}

	// Revision diffs have no working tree buckets.
	assert.Empty(t, touched.Unstaged)
	assert.Empty(t, touched.Untracked)
}

func TestMergeBaseFallsBackToLiteral(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["merge-base base head"] = errors.New("unknown revision")
	runner.failures["merge-base origin/base head"] = errors.New("unknown revision")
	runner.failures["merge-base upstream/base head"] = errors.New("unknown revision")

	git := newTestGit(t, "master", runner)

	_, err := git.TouchedFilesBetweenRevisions(context.Background(), "base", "head")
	require.NoError(t, err)

	assert.True(t, runner.calledWith(
		"--no-pager", "diff", "--name-status", "--no-color", "--relative", "-z", "base", "head"))
}

func TestTouchedFilesAgainstPreviousRevision(t *testing.T) {
	t.Run("default branch substitutes HEAD", func(t *testing.T) {
		runner := newFakeRunner()
		runner.responses["merge-base HEAD~1 HEAD"] = "base123\n"

		git := newTestGit(t, "master", runner)

		_, err := git.TouchedFilesAgainstPreviousRevision(context.Background(), "master")
		require.NoError(t, err)

		assert.True(t, runner.calledWith(
			"--no-pager", "diff", "--name-status", "--no-color", "--relative", "-z", "base123", "HEAD"))
	})

	t.Run("namespaced default branch substitutes HEAD", func(t *testing.T) {
		runner := newFakeRunner()
		runner.responses["merge-base HEAD~1 HEAD"] = "base123\n"

		git := newTestGit(t, "origin/master", runner)

		_, err := git.TouchedFilesAgainstPreviousRevision(context.Background(), "master")
		require.NoError(t, err)

		assert.True(t, runner.calledWith(
			"--no-pager", "diff", "--name-status", "--no-color", "--relative", "-z", "base123", "HEAD"))
	})

	t.Run("other revisions diff against their parent", func(t *testing.T) {
		runner := newFakeRunner()
		runner.responses["merge-base feature~1 feature"] = "parent1\n"

		git := newTestGit(t, "master", runner)

		_, err := git.TouchedFilesAgainstPreviousRevision(context.Background(), "feature")
		require.NoError(t, err)

		assert.True(t, runner.calledWith(
			"--no-pager", "diff", "--name-status", "--no-color", "--relative", "-z", "parent1", "feature"))
	})
}

func TestFileHashesFiltersIgnored(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["hash-object --stdin-paths"] = "100b0dec\n257cc564\n"

	git := newTestGit(t, "master", runner, "bar")

	hashes, err := git.FileHashes(context.Background(), []string{"foo", "bar", "dir/baz"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"foo":     "100b0dec",
		"dir/baz": "257cc564",
	}, hashes)

	// The ignored path must not reach the subprocess either.
	require.Len(t, runner.stdins, 1)
	assert.Equal(t, "foo\ndir/baz", runner.stdins[0])
}

func TestFileHashesAllIgnored(t *testing.T) {
	runner := newFakeRunner()
	git := newTestGit(t, "master", runner, "*")

	hashes, err := git.FileHashes(context.Background(), []string{"foo", "bar"})
	require.NoError(t, err)

	assert.Empty(t, hashes)
	assert.Equal(t, 0, runner.callCount())
}

func TestFileTreeHashes(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["ls-tree HEAD -r ."] = strings.Join([]string{
		"100644 blob 589c59be\t.gitignore",
		"100644 blob 100b0dec\tdir/qux",
		"100644 blob 257cc564\tbar",
		"100644 blob 7601807c\tfoo",
	}, "\n")

	git := newTestGit(t, "master", runner, "bar")

	hashes, err := git.FileTreeHashes(context.Background(), ".")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		".gitignore": "589c59be",
		"dir/qux":    "100b0dec",
		"foo":        "7601807c",
	}, hashes)
}

func TestFileTreeHashesEmptyRepository(t *testing.T) {
	runner := newFakeRunner()
	git := newTestGit(t, "master", runner)

	hashes, err := git.FileTreeHashes(context.Background(), ".")
	require.NoError(t, err)

	assert.Empty(t, hashes)
}

func TestBranchQueries(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["branch --show-current"] = "feature/glob\n"
	runner.responses["rev-parse HEAD"] = "abcdef12\n"
	runner.responses["rev-parse master"] = "12abcdef\n"

	git := newTestGit(t, "master", runner)

	branch, err := git.LocalBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feature/glob", branch)

	revision, err := git.LocalBranchRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcdef12", revision)

	assert.Equal(t, "master", git.DefaultBranch())

	revision, err = git.DefaultBranchRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12abcdef", revision)
}

func TestIsDefaultBranch(t *testing.T) {
	runner := newFakeRunner()

	git := newTestGit(t, "master", runner)
	assert.True(t, git.IsDefaultBranch("master"))
	assert.False(t, git.IsDefaultBranch("main"))

	git = newTestGit(t, "origin/master", runner)
	assert.True(t, git.IsDefaultBranch("origin/master"))
	assert.True(t, git.IsDefaultBranch("master"))
	assert.False(t, git.IsDefaultBranch("main"))
}

func TestIsEnabled(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, memFs.MkdirAll("/repo/.git", 0o755))
	require.NoError(t, memFs.MkdirAll("/repo/packages/app", 0o755))

	git, err := NewGit("master", "/repo/packages/app", WithFs(memFs), WithRunner(newFakeRunner().run))
	require.NoError(t, err)
	assert.True(t, git.IsEnabled())

	git, err = NewGit("master", "/elsewhere", WithFs(memFs), WithRunner(newFakeRunner().run))
	require.NoError(t, err)
	assert.False(t, git.IsEnabled())
}

func TestCommandErrorSurfaced(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["rev-parse HEAD"] = &CommandError{
		Cmd:    "git",
		Args:   []string{"rev-parse", "HEAD"},
		Stderr: "fatal: not a git repository",
		Cause:  errors.New("exit status 128"),
	}

	git := newTestGit(t, "master", runner)

	_, err := git.LocalBranchRevision(context.Background())
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, cmdErr.Error(), "rev-parse HEAD")
	assert.Contains(t, cmdErr.Error(), "not a git repository")
}
