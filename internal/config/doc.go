// Package config loads and merges embedded-review configuration.
//
// Settings precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (EMBREVIEW_FORMAT, EMBREVIEW_FAIL_ON, etc.)
//  3. Config file ($XDG_CONFIG_HOME/embedded-review/config.json)
//  4. Built-in defaults
//
// Analysis sources are described separately in a YAML profile file
// (sources.yaml next to config.json, or the sourcesFile setting). See
// [LoadSources].
package config
