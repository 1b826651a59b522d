package aptly

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

// fakeRunner records argv and plays back canned output.
type fakeRunner struct {
	calls [][]string
	out   string
	err   error
}

func (f *fakeRunner) run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	return f.out, f.err
}

func TestExecClientArgv(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{}
	c := &ExecClient{run: fake, gpgKey: "DEADBEEF"}
	ctx := context.Background()

	if _, err := c.ListMirrors(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListSnapshots(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdateMirror(ctx, "repo-a"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateSnapshot(ctx, "repo-a-20240115_103000", "repo-a"); err != nil {
		t.Fatal(err)
	}
	if err := c.MergeSnapshots(ctx, "repo-a-20240115_1030002", "repo-a-20240115_103000", "repo-a-20240114_103000"); err != nil {
		t.Fatal(err)
	}
	if err := c.PublishSwitch(ctx, "noble", "repo-a-20240115_1030002"); err != nil {
		t.Fatal(err)
	}
	if err := c.DropSnapshot(ctx, "repo-a-20240114_103000"); err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"mirror", "list", "-raw"},
		{"snapshot", "list", "-raw"},
		{"mirror", "update", "repo-a"},
		{"snapshot", "create", "repo-a-20240115_103000", "from", "mirror", "repo-a"},
		// older first: later merge sources win conflicts in aptly.
		{"snapshot", "merge", "repo-a-20240115_1030002", "repo-a-20240114_103000", "repo-a-20240115_103000"},
		{"publish", "switch", "-gpg-key=DEADBEEF", "noble", "repo-a-20240115_1030002"},
		{"snapshot", "drop", "repo-a-20240114_103000"},
	}
	if !reflect.DeepEqual(fake.calls, want) {
		t.Errorf("argv mismatch:\ngot  %v\nwant %v", fake.calls, want)
	}
}

func TestExecClientNoGPGKey(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{}
	c := &ExecClient{run: fake}
	if err := c.PublishSwitch(context.Background(), "noble", "snap"); err != nil {
		t.Fatal(err)
	}
	want := []string{"publish", "switch", "noble", "snap"}
	if !reflect.DeepEqual(fake.calls[0], want) {
		t.Errorf("argv = %v, want %v", fake.calls[0], want)
	}
}

func TestExecClientListParsing(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{out: "repo-a\nrepo-b\n\n"}
	c := &ExecClient{run: fake}

	mirrors, err := c.ListMirrors(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(mirrors, []string{"repo-a", "repo-b"}) {
		t.Errorf("mirrors = %v", mirrors)
	}
}

func TestExecClientShowPackages(t *testing.T) {
	t.Parallel()

	out := strings.Join([]string{
		"Name: repo-a-20240115_103000",
		"Created At: 2024-01-15 10:30:00 UTC",
		"Description: Snapshot from mirror [repo-a]",
		"Number of packages: 3",
		"Packages:",
		"  nginx_1.24.0-1_amd64",
		"  nginx-common_1.24.0-1_all",
		"  zlib1g_1.3-1_amd64",
		"",
	}, "\n")

	fake := &fakeRunner{out: out}
	c := &ExecClient{run: fake}

	refs, err := c.ShowPackages(context.Background(), "repo-a-20240115_103000")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"nginx_1.24.0-1_amd64",
		"nginx-common_1.24.0-1_all",
		"zlib1g_1.3-1_amd64",
	}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %v, want %v", refs, want)
	}
}

func TestExecClientUpdateMirrorError(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{out: "Downloading one thing\n", err: errors.New("exit status 1")}
	c := &ExecClient{run: fake}

	out, err := c.UpdateMirror(context.Background(), "repo-a")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "Downloading one thing\n" {
		t.Errorf("output should be returned alongside the error, got %q", out)
	}
}
