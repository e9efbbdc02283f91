// Package redact removes secrets from the review input package before it is
// handed to any source.
//
// Detection uses regex heuristics for common secret shapes: API keys, JWTs,
// private key blocks, AWS keys, bearer tokens, provider tokens, credentials
// baked into C headers with #define and key material written as C byte
// arrays.
//
// Diff sections for files matching configured glob patterns keep their
// headers, but every hunk is replaced with a [REDACTED] note.
package redact
