// Package lockfile opens array files and keeps their on-disk format honest.
//
// Open creates or opens the file, takes an exclusive non-blocking advisory
// lock on the descriptor, and then either initializes an empty file (header,
// zero padding up to the page boundary) or validates an existing one (length,
// header, body size). A File that Open returns has passed every check; there
// is no degraded mode.
//
// Two layers of exclusion apply:
//
//   - flock(2) on the descriptor, which excludes other processes that use the
//     same discipline. The lock is advisory: a process that ignores it can
//     still corrupt the file.
//   - a process-wide registry keyed by device and inode, which rejects a
//     second live handle on the same file within this process regardless of
//     how the platform scopes flock.
//
// Both report ErrLockContention. Callers that want to wait must retry
// themselves.
package lockfile
