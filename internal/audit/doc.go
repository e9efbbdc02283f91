// Package audit keeps an append-only log of review runs.
//
// Each run is written as one JSON record naming the run id, the reviewed
// input, every source's outcome and the summary counts. Records never hold
// the diff or source output. Records older than the retention window are
// pruned whenever a new one is appended.
//
// The default directory is $XDG_CACHE_HOME/embedded-review/audit (or the
// OS-appropriate equivalent).
package audit
