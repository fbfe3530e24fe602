/*
Package fingerprint is the incremental-build cache engine of a monorepo task
runner. For any task execution it produces a stable fingerprint covering
everything that could affect the task's output, and it determines which files
changed since a baseline revision so fingerprints stay cheap and cache hits
stay sound.

# Core Architecture

Three subsystems cooperate:

  - Target Hasher: accumulates a task's command, args, deps, environment,
    input file hashes, and project/toolchain/config metadata, and reduces
    them to one reproducible SHA-256 digest, the cache key.
  - VCS Abstraction: queries the version control system for file content
    hashes, tree hashes, and touched-file sets between revisions, caching
    subprocess output per instance so repeated queries cost nothing.
  - Glob Engine: classifies pattern strings, compiles pattern sets with
    negations, and walks directories to materialize a task's concrete input
    file list.

The scheduler resolves a task's input patterns with Walk, hashes the
resulting files through the Vcs, and feeds everything into a TargetHasher:

	vcs, err := fingerprint.NewGit("main", workspaceRoot)
	if err != nil {
	    log.Fatalf("Failed to open repository: %v", err)
	}

	files, err := fingerprint.Walk(afero.NewOsFs(), projectRoot, task.InputGlobs)
	if err != nil {
	    log.Fatalf("Failed to resolve inputs: %v", err)
	}

	hashes, err := vcs.FileHashes(ctx, files)
	if err != nil {
	    log.Fatalf("Failed to hash inputs: %v", err)
	}

	hasher := fingerprint.NewTargetHasher(nodeVersion)
	hasher.HashTask(task)
	hasher.HashInputs(hashes)
	hasher.HashPackageJSON(pkg)

	cacheKey := hasher.ToHash()

# Determinism

The digest is a pure function of the accumulated contents. Map fields hash
in ascending key order regardless of insertion order, list fields are sorted
where the contract requires it, and input paths are normalized to forward
slashes so the same project hashes identically on every operating system.
The field order inside ToHash is fixed; changing it is a schema break and
requires bumping the hash version.

# Concurrency

A TargetHasher belongs to a single task execution and needs no locking. A
Git instance is shared: its ignore rules are immutable after construction
and its response cache is guarded by a read-preferring lock, so any number
of task sequences can query it concurrently. Compiled GlobSets are immutable
and safe for concurrent reads.

# Error Handling

Construction and compilation problems surface eagerly as typed errors that
name the failing file or pattern (IgnoreFileError, GlobError). Subprocess
failures surface per call as a CommandError carrying the exact command line
and captured stderr. Malformed records inside otherwise successful VCS
output are skipped, not fatal: real-world status output contains rename and
orphan records that are safe to drop.
*/
package fingerprint
