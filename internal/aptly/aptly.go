// Package aptly provides a narrow client interface over the aptly
// command-line tool, plus snapshot naming helpers.
package aptly

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TimestampFormat is the fixed-width timestamp embedded in snapshot names.
// Fixed width means lexicographic order on the suffix equals creation order.
const TimestampFormat = "20060102_150405"

var (
	validID = regexp.MustCompile(`^[a-z0-9_-]+$`)

	// A snapshot suffix is a timestamp, optionally followed by "2" for a
	// merged snapshot. Merged snapshots sort directly after the plain
	// snapshot they were built from.
	validSuffix = regexp.MustCompile(`^\d{8}_\d{6}2?$`)
)

// IsValidID checks if the given repository ID is valid.
func IsValidID(id string) bool {
	return validID.MatchString(id)
}

// Client is the surface of the aptly CLI that this tool consumes.
// Implementations must not retry: failures are surfaced to the caller
// immediately.
type Client interface {
	// ListMirrors returns the names of all configured mirrors.
	ListMirrors(ctx context.Context) ([]string, error)

	// ListSnapshots returns the names of all snapshots, any repository.
	ListSnapshots(ctx context.Context) ([]string, error)

	// UpdateMirror refreshes a mirror and returns the command output.
	// The output is returned even when err is non-nil.
	UpdateMirror(ctx context.Context, mirror string) (string, error)

	// CreateSnapshot captures the current state of a mirror.
	CreateSnapshot(ctx context.Context, name, mirror string) error

	// MergeSnapshots merges two snapshots into dst.
	MergeSnapshots(ctx context.Context, dst, newer, older string) error

	// PublishSwitch atomically switches a published distribution to a snapshot.
	PublishSwitch(ctx context.Context, distribution, snapshot string) error

	// DropSnapshot deletes a snapshot.
	DropSnapshot(ctx context.Context, name string) error

	// ShowPackages returns the package references contained in a snapshot,
	// one "name_version_arch" reference per element.
	ShowPackages(ctx context.Context, snapshot string) ([]string, error)
}

// SnapshotName builds the name for a new snapshot of repo taken at t.
func SnapshotName(repo string, t time.Time) string {
	return repo + "-" + t.UTC().Format(TimestampFormat)
}

// MergedName builds the name for a snapshot merged on top of newer.
// The newer constituent is always a plain timestamped snapshot, because a
// merge only ever follows a fresh snapshot creation.
func MergedName(newer string) string {
	return newer + "2"
}

// SnapshotsFor filters all down to the snapshots belonging to repo and
// returns them sorted oldest first. Names whose suffix is not a recognized
// timestamp are ignored; they were not created by this tool.
func SnapshotsFor(repo string, all []string) []string {
	prefix := repo + "-"

	var names []string
	for _, name := range all {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !validSuffix.MatchString(name[len(prefix):]) {
			continue
		}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		return names[i][len(prefix):] < names[j][len(prefix):]
	})
	return names
}
