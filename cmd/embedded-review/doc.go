// Embedded-review sends a firmware change to several independent reviewers
// and reports where they agree, where only one of them spoke up and where
// they contradict each other.
//
// Usage:
//
//	embedded-review review staged                 # review staged changes
//	embedded-review review unstaged               # review working tree changes
//	embedded-review review commit <sha>           # review a specific commit
//	embedded-review review range origin/main..HEAD
//	embedded-review review snippet --path drivers/uart.c < uart.c
//	embedded-review sources                       # list configured sources
//	embedded-review audit list                    # past runs
//
// Sources are configured in sources.yaml next to config.json; run
// `embedded-review config init` to write both.
package main
