// Package review aggregates the findings of several independent analysis
// sources into one reconciled report.
//
// An Orchestrator dispatches the review input package (diff, reference
// material, focus hints) to every configured Source concurrently, each under
// its own timeout. The raw text each source returns is parsed by a
// Normalizer into Findings on a common P0..P3 severity scale, using a
// per-source Vocabulary.
//
// Findings are then clustered (BuildClusters) by a weighted score of
// location proximity, category compatibility and text similarity, with at
// most one finding per source in any cluster. The reconciler assigns each
// cluster a unified severity and a status of consensus, source_only or
// contradiction. Assemble renders the result into a Report bucketed by
// severity, disclosing every source that timed out or failed.
//
// Prompt construction (prompt.go) and reference loading (rules.go) serve the
// LLM-backed sources in internal/source.
package review
