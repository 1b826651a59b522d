package aptly

import (
	"reflect"
	"testing"
	"time"
)

func TestSnapshotName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	name := SnapshotName("repo-a", ts)
	if name != "repo-a-20240115_103000" {
		t.Errorf(`SnapshotName = %q, want "repo-a-20240115_103000"`, name)
	}

	merged := MergedName(name)
	if merged != "repo-a-20240115_1030002" {
		t.Errorf(`MergedName = %q, want "repo-a-20240115_1030002"`, merged)
	}
}

func TestSnapshotsFor(t *testing.T) {
	t.Parallel()

	all := []string{
		"repo-a-20240115_103000",
		"repo-a-20240114_103000",
		"repo-a-20240114_1030002",
		"repo-b-20240115_103000",
		"repo-a-manual-backup",
		"repo-a-20240116_090000",
	}

	got := SnapshotsFor("repo-a", all)
	want := []string{
		"repo-a-20240114_103000",
		"repo-a-20240114_1030002",
		"repo-a-20240115_103000",
		"repo-a-20240116_090000",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotsFor = %v, want %v", got, want)
	}
}

func TestSnapshotsForMergedOrdering(t *testing.T) {
	t.Parallel()

	// A merged snapshot must sort directly after the plain snapshot
	// carrying the same timestamp.
	all := []string{
		"repo-20240115_1030002",
		"repo-20240116_000000",
		"repo-20240115_103000",
	}
	got := SnapshotsFor("repo", all)
	want := []string{
		"repo-20240115_103000",
		"repo-20240115_1030002",
		"repo-20240116_000000",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotsFor = %v, want %v", got, want)
	}
}

func TestSnapshotsForEmpty(t *testing.T) {
	t.Parallel()

	if got := SnapshotsFor("repo", nil); got != nil {
		t.Errorf("SnapshotsFor(nil) = %v, want nil", got)
	}
	if got := SnapshotsFor("repo", []string{"other-20240115_103000"}); got != nil {
		t.Errorf("SnapshotsFor = %v, want nil", got)
	}
}

func TestIsValidID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"ubuntu", "repo-a", "repo_1"} {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", "Repo", "repo a", "repo/../x"} {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}
