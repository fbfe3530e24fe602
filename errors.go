package fingerprint

import (
	"fmt"
	"strings"
)

// IgnoreFileError is returned when the root ignore file cannot be read or
// parsed at VCS construction time. It is fatal to construction.
type IgnoreFileError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *IgnoreFileError) Error() string {
	return fmt.Sprintf("failed to load ignore file %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *IgnoreFileError) Unwrap() error {
	return e.Cause
}

// CommandError is returned when an external command cannot be spawned or
// exits non-zero. It carries the full command line and any captured stderr
// so operators can diagnose environment issues directly.
type CommandError struct {
	Cmd    string
	Args   []string
	Stderr string
	Cause  error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed: %v", e.CommandLine(), e.Cause)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// CommandLine returns the invoked program and arguments as one string.
func (e *CommandError) CommandLine() string {
	return strings.Join(append([]string{e.Cmd}, e.Args...), " ")
}

// GlobError is returned when a pattern fails to compile. A single bad
// pattern aborts the whole batch, since a partially compiled matcher has no
// safe semantics.
type GlobError struct {
	Pattern string
	Cause   error
}

// Error implements the error interface.
func (e *GlobError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %v", e.Pattern, e.Cause)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *GlobError) Unwrap() error {
	return e.Cause
}
