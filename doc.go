/*
Package aptlyctl is an operator tool for aptly-managed Debian repositories.

aptlyctl wraps the aptly command-line interface and provides:
  - Package search across all snapshots by exact name or prefix
  - A full mirror update / snapshot / merge / publish cycle per repository
  - Snapshot retention with a configurable keep-last window
  - Mail notification of run summaries and fatal errors
  - Exclusive run locking so concurrent syncs cannot interleave aptly state

The main packages are:

	github.com/aptlyctl/aptlyctl/internal/aptly   - Narrow client interface over the aptly CLI
	github.com/aptlyctl/aptlyctl/internal/search  - Snapshot package search
	github.com/aptlyctl/aptlyctl/internal/syncer  - Sync orchestration, configuration, retention
	github.com/aptlyctl/aptlyctl/internal/notify  - Mail buffer and SMTP notification
	github.com/aptlyctl/aptlyctl/cmd/aptlyctl     - Command-line interface
*/
package aptlyctl
