// Package cli wires together the Cobra command tree for the embedded-review
// binary.
//
// It defines the root command and its subcommands (review, config, sources,
// audit, hook, version), binds flags, resolves configuration and source
// profiles, drives one aggregation run per review and maps the outcome to a
// deterministic exit code for CI gating.
package cli
