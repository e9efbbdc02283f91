// Package output formats review reports for display or machine consumption.
//
// Four formats are supported:
//   - text: human-readable terminal output (default)
//   - json: the full structured report
//   - markdown: PR-comment-friendly, one collapsible section per severity
//   - sarif: SARIF v2.1.0, one result per cluster
//
// Every format discloses unavailable sources when the run is degraded. Use
// [GetWriter] to obtain a [Writer] for a format name, or [WriteReport] to
// write straight to a file or stdout.
package output
