package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strings"
)

// hashVersion is the schema version of the digest layout. Bumping it
// invalidates every previously computed digest.
const hashVersion = "1"

// HashFunc defines a function that creates a new hash.Hash instance.
type HashFunc func() hash.Hash

// TargetHasher accumulates everything that can affect a task's output and
// reduces it to a single hex digest, used verbatim as the cache key.
//
// One instance is created per task execution, mutated by the scheduler while
// it assembles the fingerprint, finalized with ToHash, then discarded. It is
// not safe for concurrent use and never needs to be: instances are never
// shared across tasks.
type TargetHasher struct {
	// Task `command`
	command string

	// Task `args`
	args []string

	// Task `deps`
	deps []string

	// Environment variables
	envVars map[string]string

	// Input files and globs mapped to a unique hash
	inputHashes map[string]string

	// Node.js version
	nodeVersion string

	// `package.json` `dependencies`
	packageDependencies map[string]string

	// `package.json` `devDependencies`
	packageDevDependencies map[string]string

	// `package.json` `peerDependencies`
	packagePeerDependencies map[string]string

	// Owning project `dependsOn`
	projectDeps []string

	// Task `target`
	target string

	// `tsconfig.json` `compilerOptions`
	tsconfigCompilerOptions map[string]string

	// Version of the hasher itself
	version string

	hashFunc HashFunc
}

// HasherOption configures a TargetHasher.
type HasherOption func(*TargetHasher)

// WithHashFunc sets a custom digest function for the hasher.
// The default is SHA-256, which produces the 64-character hex cache keys the
// artifact store expects. Changing it invalidates existing cache entries.
func WithHashFunc(hashFunc HashFunc) HasherOption {
	return func(h *TargetHasher) {
		h.hashFunc = hashFunc
	}
}

// NewTargetHasher creates a hasher for a single task execution, seeded with
// the active runtime version.
func NewTargetHasher(nodeVersion string, options ...HasherOption) *TargetHasher {
	h := &TargetHasher{
		envVars:                 make(map[string]string),
		inputHashes:             make(map[string]string),
		nodeVersion:             nodeVersion,
		packageDependencies:     make(map[string]string),
		packageDevDependencies:  make(map[string]string),
		packagePeerDependencies: make(map[string]string),
		tsconfigCompilerOptions: make(map[string]string),
		version:                 hashVersion,
		hashFunc:                defaultHashFunc,
	}

	for _, option := range options {
		option(h)
	}

	return h
}

func defaultHashFunc() hash.Hash {
	return sha256.New()
}

// HashArgs appends passthrough arguments to the task args and re-sorts the
// full list. A no-op when passthroughArgs is empty. Repeated calls append
// again; callers are expected to invoke it once per execution.
func (h *TargetHasher) HashArgs(passthroughArgs []string) {
	if len(passthroughArgs) == 0 {
		return
	}

	h.args = append(h.args, passthroughArgs...)

	// Sort lists to be deterministic
	sort.Strings(h.args)
}

// HashEnvVars merges environment variables into the hasher. Merging is keyed
// and idempotent: the same pair merged twice contributes once.
func (h *TargetHasher) HashEnvVars(vars map[string]string) {
	for key, value := range vars {
		h.envVars[key] = value
	}
}

// HashInputs merges a mapping of input file paths to unique content hashes.
// File paths must be relative from the workspace root. Separators are
// standardized on `/` so the digest is identical between Windows and nix
// machines. Last write wins for a path merged twice.
func (h *TargetHasher) HashInputs(inputs map[string]string) {
	for file, contentHash := range inputs {
		h.inputHashes[standardizeSeparators(file)] = contentHash
	}
}

// HashPackageJSON merges `package.json` dependencies, as version range
// changes should bust the cache. Merges are keyed unions: merging the same
// manifest twice, or two manifests in either order, yields the same result
// unless the same name maps to different ranges, in which case the last
// merge wins.
func (h *TargetHasher) HashPackageJSON(pkg *PackageJSON) {
	for name, version := range pkg.Dependencies {
		h.packageDependencies[name] = version
	}

	for name, version := range pkg.DevDependencies {
		h.packageDevDependencies[name] = version
	}

	for name, version := range pkg.PeerDependencies {
		h.packagePeerDependencies[name] = version
	}
}

// HashProject stores `dependsOn` from the owning project.
// The project supplies the list pre-sorted; it is not re-sorted here.
func (h *TargetHasher) HashProject(project *Project) {
	h.projectDeps = append([]string(nil), project.DependsOn...)
}

// HashTask stores the command, args, deps, and target from a task. Call it
// before HashArgs so passthrough args are sorted together with task args.
func (h *TargetHasher) HashTask(task *Task) {
	h.command = task.Command
	h.args = append([]string(nil), task.Args...)
	h.deps = append([]string(nil), task.Deps...)
	h.target = task.Target

	// Sort lists to be deterministic
	sort.Strings(h.args)
	sort.Strings(h.deps)
}

// HashTsConfig stores `tsconfig.json` compiler options that may alter
// compiled or generated output. Only module, moduleResolution, and target
// participate; other options are ignored on purpose.
func (h *TargetHasher) HashTsConfig(tsconfig *TsConfig) {
	options := tsconfig.CompilerOptions
	if options == nil {
		return
	}

	if options.Module != "" {
		h.tsconfigCompilerOptions["module"] = options.Module
	}

	if options.ModuleResolution != "" {
		h.tsconfigCompilerOptions["module_resolution"] = options.ModuleResolution
	}

	if options.Target != "" {
		h.tsconfigCompilerOptions["target"] = options.Target
	}
}

// ToHash reduces the accumulated contents to a lowercase hex digest.
// Pure: calling it repeatedly without further mutation returns the same
// string.
//
// Field order is important! Do not move fields around as it will change the
// hash of every existing target and break deterministic builds. Adding or
// removing fields requires bumping hashVersion. The byte stream is plain
// UTF-8 concatenation with no delimiters; the fixed field order is what
// keeps it unambiguous.
func (h *TargetHasher) ToHash() string {
	digest := h.hashFunc()

	hashMap := func(m map[string]string) {
		for _, k := range sortedKeys(m) {
			digest.Write([]byte(k))
			digest.Write([]byte(m[k]))
		}
	}

	hashList := func(list []string) {
		for _, v := range list {
			digest.Write([]byte(v))
		}
	}

	digest.Write([]byte(h.version))
	digest.Write([]byte(h.nodeVersion))

	// Task
	digest.Write([]byte(h.command))
	hashList(h.args)
	hashList(h.deps)
	hashMap(h.envVars)
	hashMap(h.inputHashes)

	// Deps
	hashList(h.projectDeps)
	hashMap(h.packageDependencies)
	hashMap(h.packageDevDependencies)
	hashMap(h.packagePeerDependencies)

	// Config
	hashMap(h.tsconfigCompilerOptions)

	return hex.EncodeToString(digest.Sum(nil))
}

// sortedKeys returns the keys of m in ascending order, so map fields are
// always hashed key-then-value in a stable order regardless of insertion.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// standardizeSeparators rewrites backslash separators to forward slashes on
// every platform, not just Windows, so a path hashed on one OS matches the
// same path hashed on another.
func standardizeSeparators(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
