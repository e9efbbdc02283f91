// Package source adapts analysis back ends to the orchestrator's Source
// interface.
//
// [Provider] sends the rendered review prompt to an LLM through a
// providers.Reviewer. [Command] runs an external analysis CLI, writing either
// the prompt or the JSON input package to its stdin and returning stdout.
// [Build] turns configured source profiles into descriptors, each with its
// own severity vocabulary and timeout.
package source
