// Package gitctx builds review input packages from a git repository.
//
// Unstaged, staged, commit, range and snippet modes shell out to git. The
// resulting diff is filtered by exclude globs and truncated to a byte budget
// before it is returned as a [review.Input].
package gitctx
